package api

import (
	"net/http"

	"github.com/onkernel/bootimg/lib/convert"
)

// CreateConversion runs a conversion and returns its structured result.
// The pipeline reports operational failures in the result body, so the
// handler maps result status to the response code.
func (s *ApiService) CreateConversion(w http.ResponseWriter, r *http.Request) {
	var req convert.Request
	if err := decodeJSON(r, &req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{
			Code:    "bad_request",
			Message: err.Error(),
		})
		return
	}

	res := s.ConvertManager.Convert(r.Context(), req)
	status := http.StatusCreated
	if res.Status == convert.StatusError {
		status = http.StatusUnprocessableEntity
	}
	s.writeJSON(w, status, res)
}

// ListArtifacts lists finished images in the output directory.
func (s *ApiService) ListArtifacts(w http.ResponseWriter, r *http.Request) {
	artifacts, err := s.ConvertManager.ListArtifacts(r.Context())
	if err != nil {
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{
			Code:    "error",
			Message: err.Error(),
		})
		return
	}
	s.writeJSON(w, http.StatusOK, artifacts)
}

// PurgeArtifacts empties the output directory.
func (s *ApiService) PurgeArtifacts(w http.ResponseWriter, r *http.Request) {
	res, err := s.ConvertManager.PurgeArtifacts(r.Context())
	if err != nil {
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{
			Code:    "error",
			Message: err.Error(),
		})
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}
