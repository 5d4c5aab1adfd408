package handler

import "net/http"

// errorResponse writes {"error": message}. When even that cannot be encoded
// the client gets a bare 500.
func errorResponse(w http.ResponseWriter, status int, message any) {
	if err := writeJSON(w, status, envelope{"error": message}); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
	}
}

// failedValidationResponse answers 422 with the per-field validation messages.
func failedValidationResponse(w http.ResponseWriter, fields map[string]string) {
	errorResponse(w, http.StatusUnprocessableEntity, fields)
}

func badRequestResponse(w http.ResponseWriter, message any) {
	errorResponse(w, http.StatusBadRequest, message)
}

func internalErrorResponse(w http.ResponseWriter, message any) {
	errorResponse(w, http.StatusInternalServerError, message)
}
