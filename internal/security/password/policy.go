package password

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"unicode"

	"github.com/dropDatabas3/authcore/internal/domain"
	"github.com/dropDatabas3/authcore/internal/observability/logger"
)

// SpecialChars es la clase de caracteres especiales aceptada por la política.
const SpecialChars = `!@#$%^&*(),.?":{}|<>`

// minUserToken es el largo mínimo de un fragmento de datos de usuario para
// considerarlo en PreventUserData.
const minUserToken = 3

// Mensajes de error. Son estables: el admin UI los muestra tal cual.
const (
	MsgForbiddenPattern = "Password contains a forbidden pattern"
	MsgUserData         = "Password must not contain personal information"
	MsgCommon           = "Password is too common"
)

// UserContext son los datos del usuario que no pueden aparecer en el
// password cuando la política tiene PreventUserData.
type UserContext struct {
	Email    string
	Username string
	Name     string
}

// Result del motor de políticas.
type Result struct {
	IsValid bool     `json:"isValid"`
	Errors  []string `json:"errors"`
}

// Validator aplica políticas con una blacklist concreta (PreventCommon).
// El zero value usa CommonPasswords.
type Validator struct {
	Blacklist *Blacklist
}

// Validate aplica policy con la blacklist por defecto.
func Validate(pw string, policy domain.PasswordPolicy, uc *UserContext) Result {
	return Validator{}.Validate(pw, policy, uc)
}

// Validate acumula todas las violaciones, en orden: largo mínimo, largo
// máximo, mayúscula, minúscula, dígito, especial, patrones prohibidos, datos
// de usuario y, por último, blacklist.
func (v Validator) Validate(pw string, policy domain.PasswordPolicy, uc *UserContext) Result {
	var errs []string
	n := len([]rune(pw))

	if n < policy.MinLength {
		errs = append(errs, fmt.Sprintf("Password must be at least %d characters long", policy.MinLength))
	}
	if policy.MaxLength > 0 && n > policy.MaxLength {
		errs = append(errs, fmt.Sprintf("Password must be at most %d characters long", policy.MaxLength))
	}

	cls := classify(pw)
	if policy.RequireUppercase && !cls.upper {
		errs = append(errs, "Password must contain at least one uppercase letter")
	}
	if policy.RequireLowercase && !cls.lower {
		errs = append(errs, "Password must contain at least one lowercase letter")
	}
	if policy.RequireNumbers && !cls.digit {
		errs = append(errs, "Password must contain at least one number")
	}
	if policy.RequireSpecialChars && !cls.special {
		errs = append(errs, "Password must contain at least one special character")
	}

	if matchesForbidden(pw, policy.ForbiddenPatterns) {
		errs = append(errs, MsgForbiddenPattern)
	}

	if policy.PreventUserData && uc != nil && containsUserData(pw, uc) {
		errs = append(errs, MsgUserData)
	}

	if policy.PreventCommon {
		bl := v.Blacklist
		if bl == nil {
			bl = CommonPasswords
		}
		if bl.Contains(pw) {
			errs = append(errs, MsgCommon)
		}
	}

	return Result{IsValid: len(errs) == 0, Errors: errs}
}

type classes struct{ upper, lower, digit, special bool }

func classify(pw string) classes {
	var c classes
	for _, r := range pw {
		switch {
		case unicode.IsUpper(r):
			c.upper = true
		case unicode.IsLower(r):
			c.lower = true
		case unicode.IsDigit(r):
			c.digit = true
		case strings.ContainsRune(SpecialChars, r):
			c.special = true
		}
	}
	return c
}

// compiled cachea patrones ya compilados; un nil guardado marca un patrón
// inválido que ya fue logueado.
var compiled sync.Map // map[string]*regexp.Regexp

func pattern(p string) *regexp.Regexp {
	if v, ok := compiled.Load(p); ok {
		return v.(*regexp.Regexp)
	}
	re, err := regexp.Compile(p)
	if err != nil {
		logger.L().Warn("password policy: skipping invalid forbidden pattern",
			logger.Component("password"), logger.String("pattern", p), logger.Err(err))
		re = nil
	}
	compiled.Store(p, re)
	return re
}

func matchesForbidden(pw string, patterns []string) bool {
	for _, p := range patterns {
		if re := pattern(p); re != nil && re.MatchString(pw) {
			return true
		}
	}
	return false
}

// userTokens parte email (parte local), username y nombre en fragmentos
// alfanuméricos de al menos minUserToken caracteres, en minúsculas.
func userTokens(uc *UserContext) []string {
	local := uc.Email
	if at := strings.IndexByte(local, '@'); at >= 0 {
		local = local[:at]
	}
	var out []string
	for _, src := range []string{local, uc.Username, uc.Name} {
		fields := strings.FieldsFunc(strings.ToLower(src), func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		for _, f := range fields {
			if len([]rune(f)) >= minUserToken {
				out = append(out, f)
			}
		}
	}
	return out
}

func containsUserData(pw string, uc *UserContext) bool {
	lower := strings.ToLower(pw)
	for _, tok := range userTokens(uc) {
		if strings.Contains(lower, tok) {
			return true
		}
	}
	return false
}
