package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"example.com/gymlog/internal/domain"
)

const maxBodyBytes = 1 << 20

type fields map[string]json.RawMessage

// decodeFields reads a JSON object body and rejects any key outside allowed.
func decodeFields(r *http.Request, allowed ...string) (fields, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, &domain.ValidationError{Field: "body", Message: "unable to read body"}
	}
	var out fields
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, &domain.ValidationError{Field: "body", Message: "a JSON object body is required"}
	}
	if err := json.Unmarshal(body, &out); err != nil || out == nil {
		return nil, &domain.ValidationError{Field: "body", Message: "unable to parse body as a JSON object"}
	}
	if err := out.only(allowed...); err != nil {
		return nil, err
	}
	return out, nil
}

func (f fields) only(allowed ...string) error {
	var unknown []string
	for key := range f {
		known := false
		for _, a := range allowed {
			if key == a {
				known = true
				break
			}
		}
		if !known {
			unknown = append(unknown, key)
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	sort.Strings(unknown)
	return &domain.ValidationError{
		Field:   unknown[0],
		Message: fmt.Sprintf("Unknown arguments: %s", strings.Join(unknown, ", ")),
	}
}

func (f fields) raw(name string) (json.RawMessage, error) {
	raw, ok := f[name]
	if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, domain.MissingField(name)
	}
	return raw, nil
}

func (f fields) str(name string) (string, error) {
	raw, err := f.raw(name)
	if err != nil {
		return "", err
	}
	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return "", &domain.ValidationError{Field: name, Message: fmt.Sprintf("Parameter '%s' must be a string", name)}
	}
	return value, nil
}

type registerInput struct {
	Username string
	Password string
}

func parseRegister(r *http.Request) (registerInput, error) {
	f, err := decodeFields(r, "username", "password")
	if err != nil {
		return registerInput{}, err
	}
	var in registerInput
	if in.Username, err = f.str("username"); err != nil {
		return registerInput{}, err
	}
	if in.Password, err = f.str("password"); err != nil {
		return registerInput{}, err
	}
	if in.Password == "" {
		return registerInput{}, &domain.ValidationError{Field: "password", Message: "Parameter 'password' must not be empty"}
	}
	return in, nil
}

// parseExerciseNames accepts {"exercises": "Squat"} as well as a list of names.
func parseExerciseNames(r *http.Request) ([]string, error) {
	f, err := decodeFields(r, "exercises")
	if err != nil {
		return nil, err
	}
	raw, err := f.raw("exercises")
	if err != nil {
		return nil, err
	}

	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return []string{single}, nil
	}
	var names []string
	if err := json.Unmarshal(raw, &names); err != nil {
		return nil, &domain.ValidationError{Field: "exercises", Message: "Parameter 'exercises' must be a string or a list of strings"}
	}
	return names, nil
}

type passwordInput struct {
	Password string
}

func parsePassword(r *http.Request) (passwordInput, error) {
	f, err := decodeFields(r, "password")
	if err != nil {
		return passwordInput{}, err
	}
	password, err := f.str("password")
	if err != nil {
		return passwordInput{}, err
	}
	if password == "" {
		return passwordInput{}, &domain.ValidationError{Field: "password", Message: "Parameter 'password' must not be empty"}
	}
	return passwordInput{Password: password}, nil
}

type sessionInput struct {
	Date  time.Time
	Specs []domain.ExerciseSpec
}

func parseSession(r *http.Request) (sessionInput, error) {
	f, err := decodeFields(r, "date", "exercises")
	if err != nil {
		return sessionInput{}, err
	}

	rawDate, err := f.str("date")
	if err != nil {
		return sessionInput{}, err
	}
	date, err := domain.ParseDate(rawDate)
	if err != nil {
		return sessionInput{}, err
	}

	raw, err := f.raw("exercises")
	if err != nil {
		return sessionInput{}, err
	}
	var items []fields
	if err := json.Unmarshal(raw, &items); err != nil {
		return sessionInput{}, &domain.ValidationError{Field: "exercises", Message: "Parameter 'exercises' must be a list of objects"}
	}

	specs := make([]domain.ExerciseSpec, 0, len(items))
	for _, item := range items {
		spec, err := parseSpec(item)
		if err != nil {
			return sessionInput{}, err
		}
		specs = append(specs, spec)
	}
	return sessionInput{Date: date, Specs: specs}, nil
}

func parseSpec(item fields) (domain.ExerciseSpec, error) {
	if item == nil {
		return domain.ExerciseSpec{}, &domain.ValidationError{Field: "exercises", Message: "Parameter 'exercises' must be a list of objects"}
	}
	if err := item.only("exercise name", "reps", "weights"); err != nil {
		return domain.ExerciseSpec{}, err
	}

	var spec domain.ExerciseSpec
	name, err := item.str("exercise name")
	if err != nil {
		return domain.ExerciseSpec{}, err
	}
	spec.Name = name

	rawReps, err := item.raw("reps")
	if err != nil {
		return domain.ExerciseSpec{}, err
	}
	if err := json.Unmarshal(rawReps, &spec.Reps); err != nil {
		return domain.ExerciseSpec{}, &domain.ValidationError{Field: "reps", Message: fmt.Sprintf("Parameter 'reps' for exercise '%s' must be a list of integers", name)}
	}

	rawWeights, err := item.raw("weights")
	if err != nil {
		return domain.ExerciseSpec{}, err
	}
	if err := json.Unmarshal(rawWeights, &spec.Weights); err != nil {
		return domain.ExerciseSpec{}, &domain.ValidationError{Field: "weights", Message: fmt.Sprintf("Parameter 'weights' for exercise '%s' must be a list of numbers", name)}
	}
	return spec, nil
}
