package httpapi

import (
	"net/http"
)

func (s *Server) createAPIKey(w http.ResponseWriter, r *http.Request) {
	var req createAPIKeyRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid JSON: "+err.Error())
		return
	}
	k, err := s.keys.Create(r.Context(), req.Name, req.IsAdmin)
	if err != nil {
		serviceError(w, err)
		return
	}
	// The only response that carries the key material.
	toJSON(w, http.StatusCreated, toAPIKeyResponse(k, true))
}

func (s *Server) listAPIKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := s.keys.List(r.Context())
	if err != nil {
		serviceError(w, err)
		return
	}
	out := make([]apiKeyResponse, 0, len(keys))
	for _, k := range keys {
		out = append(out, toAPIKeyResponse(k, false))
	}
	toJSON(w, http.StatusOK, out)
}

func (s *Server) getAPIKey(w http.ResponseWriter, r *http.Request) {
	guid, ok := parseGUID(r, "id")
	if !ok {
		badRequest(w, "invalid key guid")
		return
	}
	k, err := s.keys.ByGUID(r.Context(), guid)
	if err != nil {
		serviceError(w, err)
		return
	}
	toJSON(w, http.StatusOK, toAPIKeyResponse(k, false))
}

func (s *Server) deleteAPIKey(w http.ResponseWriter, r *http.Request) {
	guid, ok := parseGUID(r, "id")
	if !ok {
		badRequest(w, "invalid key guid")
		return
	}
	if err := s.keys.Delete(r.Context(), guid); err != nil {
		serviceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
