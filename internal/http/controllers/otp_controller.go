package controllers

import (
	"net/http"

	"github.com/dropDatabas3/authcore/internal/auth"
	"github.com/dropDatabas3/authcore/internal/domain"
	"github.com/dropDatabas3/authcore/internal/http/dto"
	"github.com/dropDatabas3/authcore/internal/http/helpers"
)

// OTPController emite y verifica códigos de un solo uso.
type OTPController struct {
	engine *auth.Engine
}

func otpRequest(b dto.OTPRequestBody) auth.OTPRequest {
	return auth.OTPRequest{
		TenantID:   b.TenantID,
		Identifier: b.Identifier,
		Channel:    domain.OTPChannel(b.Channel),
		Purpose:    domain.OTPPurpose(b.Purpose),
	}
}

// Request maneja POST /otp/request. La respuesta es la misma exista o no
// un usuario con ese identifier.
func (c *OTPController) Request(w http.ResponseWriter, r *http.Request) {
	log := opLogger(r, "OTPController.Request")

	var body dto.OTPRequestBody
	if !helpers.ReadJSON(w, r, &body) {
		return
	}
	ttl, err := c.engine.RequestOTP(r.Context(), otpRequest(body))
	if err != nil {
		writeError(w, log, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, dto.OTPRequestResponse{Sent: true, ExpiresIn: int(ttl.Seconds())})
}

// Verify maneja POST /otp/verify. Con purpose=login devuelve una sesión.
func (c *OTPController) Verify(w http.ResponseWriter, r *http.Request) {
	log := opLogger(r, "OTPController.Verify")

	var body dto.OTPVerifyBody
	if !helpers.ReadJSON(w, r, &body) {
		return
	}
	res, err := c.engine.VerifyOTP(r.Context(), otpRequest(body.OTPRequestBody), body.Code, helpers.SessionMeta(r, domain.AuthMethodOTP))
	if err != nil {
		writeError(w, log, err)
		return
	}

	out := dto.OTPVerifyResponse{Verified: true}
	if res.User != nil {
		s := dto.Summary(res.User)
		out.User = &s
	}
	if res.Session != nil {
		out.Token = res.Session.Token
		out.ExpiresAt = &res.Session.ExpiresAt
	}
	helpers.WriteJSON(w, http.StatusOK, out)
}
