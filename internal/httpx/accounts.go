package httpx

import (
	"context"
	"net/http"

	"github.com/percystore/smartsales/internal/apperr"
	"github.com/percystore/smartsales/internal/auth"
	"github.com/percystore/smartsales/internal/users"
	"github.com/percystore/smartsales/internal/verify"
)

func callerID(r *http.Request) (int64, error) {
	c, err := auth.Caller(r.Context())
	if err != nil {
		return 0, err
	}
	return c.UserID(), nil
}

func (a *API) register(w http.ResponseWriter, r *http.Request) {
	var in users.RegisterInput
	if err := decode(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	u, err := a.Accounts.Register(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, u.Profile())
}

func (a *API) login(w http.ResponseWriter, r *http.Request) {
	var in users.LoginInput
	if err := decode(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	tok, err := a.Accounts.Login(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tok)
}

type codeReq struct {
	Channel     verify.Channel `json:"channel" validate:"required,oneof=email sms whatsapp"`
	Destination string         `json:"destination" validate:"required"`
	Code        string         `json:"code"`
}

func (a *API) sendCode(w http.ResponseWriter, r *http.Request) {
	var req codeReq
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	out, err := a.Codes.Issue(r.Context(), req.Channel, req.Destination)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) verifyCode(w http.ResponseWriter, r *http.Request) {
	var req codeReq
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Code == "" {
		writeError(w, r, apperr.Validation("code is required"))
		return
	}
	if err := a.Codes.Check(r.Context(), req.Channel, req.Destination, req.Code); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"verified": true})
}

func (a *API) me(w http.ResponseWriter, r *http.Request) {
	id, err := callerID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	u, err := a.Profiles.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u.Profile())
}

func (a *API) updateMe(w http.ResponseWriter, r *http.Request) {
	id, err := callerID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var in users.ProfileInput
	if err := decode(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	u, err := a.Profiles.UpdateProfile(r.Context(), id, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u.Profile())
}

type changeReq struct {
	Value string `json:"value" validate:"required"`
	Code  string `json:"code" validate:"required,len=6"`
}

func (a *API) changeEmail(w http.ResponseWriter, r *http.Request) {
	a.change(w, r, a.Accounts.ChangeEmail)
}

func (a *API) changePhone(w http.ResponseWriter, r *http.Request) {
	a.change(w, r, a.Accounts.ChangePhone)
}

func (a *API) change(w http.ResponseWriter, r *http.Request, apply func(ctx context.Context, id int64, value, code string) (users.User, error)) {
	id, err := callerID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req changeReq
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	u, err := apply(r.Context(), id, req.Value, req.Code)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u.Profile())
}

func (a *API) listAddresses(w http.ResponseWriter, r *http.Request) {
	id, err := callerID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	list, err := a.Profiles.Addresses(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if list == nil {
		list = []users.Address{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (a *API) getAddress(w http.ResponseWriter, r *http.Request) {
	uid, err := callerID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	addr, err := a.Profiles.Address(r.Context(), uid, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, addr)
}

func (a *API) createAddress(w http.ResponseWriter, r *http.Request) {
	uid, err := callerID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var in users.AddressInput
	if err := decode(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	addr, err := a.Profiles.CreateAddress(r.Context(), uid, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, addr)
}

func (a *API) updateAddress(w http.ResponseWriter, r *http.Request) {
	uid, err := callerID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var in users.AddressInput
	if err := decode(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	addr, err := a.Profiles.UpdateAddress(r.Context(), uid, id, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, addr)
}

func (a *API) deleteAddress(w http.ResponseWriter, r *http.Request) {
	uid, err := callerID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := a.Profiles.DeleteAddress(r.Context(), uid, id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
