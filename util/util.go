package util

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Errors accumulates multiple errors so that related configuration
// problems can be reported together rather than one at a time.
type Errors []error

func (e Errors) Error() string {
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// RequireEnv returns the value of the named environment variable,
// appending an error to errs if the variable is unset or empty.
func RequireEnv(varName string, errs *Errors) string {
	val := os.Getenv(varName)
	if len(val) == 0 {
		*errs = append(*errs, fmt.Errorf("environment variable %s must be set", varName))
	}
	return val
}

// ValidPort transforms a port string into the form ":<port>", and
// errors if the string isn't a valid port number.
func ValidPort(port string) (string, error) {
	if _, err := strconv.Atoi(port); err != nil {
		return "", fmt.Errorf("given portstring %s is invalid", port)
	}
	return fmt.Sprintf(":%s", port), nil
}
