// Package validation checks user input with go-playground/validator and
// reports failures as *domain.ValidationError.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"cipherlog/internal/domain"
)

// validator caches struct metadata and is safe for concurrent use.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// Struct validates s against its `validate` tags.
func Struct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := &domain.ValidationError{}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, domain.FieldError{Field: fe.Field(), Message: message(fe)})
	}
	return out
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if":
		return "is required"
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	default:
		return "is invalid"
	}
}

// Draft is a message about to be appended.
type Draft struct {
	Author string `json:"author" validate:"required,max=20"`
	Text   string `json:"text" validate:"required,max=1000"`
}

// Message validates a draft author and text.
func Message(author, text string) error {
	return Struct(Draft{Author: author, Text: text})
}

// Join carries everything a member supplies to connect.
type Join struct {
	Username   string `json:"username" validate:"required,max=20"`
	Scheme     string `json:"scheme" validate:"required,oneof=rsa-oaep passphrase"`
	PublicKey  string `json:"public_key" validate:"required_if=Scheme rsa-oaep"`
	PrivateKey string `json:"private_key" validate:"required_if=Scheme rsa-oaep"`
	Passphrase string `json:"passphrase" validate:"required_if=Scheme passphrase"`
}

// Connect validates a username and key material before any crypto runs.
func Connect(username string, km domain.KeyMaterial) error {
	return Struct(Join{
		Username:   username,
		Scheme:     string(km.Scheme),
		PublicKey:  strings.TrimSpace(km.PublicKeyPEM),
		PrivateKey: strings.TrimSpace(km.PrivateKeyPEM),
		Passphrase: km.Passphrase,
	})
}
