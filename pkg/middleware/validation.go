package middleware

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"

	"github.com/go-playground/validator/v10"
)

// MaxBodyBytes предел тела запроса оператора
const MaxBodyBytes = 1 << 20

var (
	ErrNotJSON   = errors.New("content type must be application/json")
	ErrEmptyBody = errors.New("request body is empty")
)

// ErrorResponse тело ответа об ошибке
type ErrorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// ValidateRequest пускает к обработчику только POST/PUT с JSON телом не больше MaxBodyBytes
func ValidateRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost || r.Method == http.MethodPut {
			if err := checkJSONBody(r); err != nil {
				status := http.StatusBadRequest
				if errors.Is(err, ErrNotJSON) {
					status = http.StatusUnsupportedMediaType
				}
				WriteError(w, status, err)
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
		}
		next.ServeHTTP(w, r)
	})
}

func checkJSONBody(r *http.Request) error {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		return ErrNotJSON
	}
	if r.ContentLength == 0 {
		return ErrEmptyBody
	}
	return nil
}

// HandleValidationError отвечает 400. Ошибки validator раскладываются по полям JSON.
func HandleValidationError(w http.ResponseWriter, err error) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		WriteError(w, http.StatusBadRequest, err)
		return
	}

	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Tag()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	json.NewEncoder(w).Encode(ErrorResponse{Error: "validation failed", Fields: fields})
}

// WriteError JSON ответ с текстом ошибки
func WriteError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: err.Error()})
}
