package common

import (
	"fmt"
	"strconv"
	"strings"
)

// MailboxArg is the argument every Gmail tool takes to select a mailbox.
const MailboxArg = "email_identifier"

// MailboxFromArgs returns the mailbox identifier from the tool arguments.
func MailboxFromArgs(args map[string]any) (string, error) {
	mailbox, _ := args[MailboxArg].(string)
	mailbox = strings.TrimSpace(mailbox)
	if mailbox == "" {
		return "", fmt.Errorf("%s is required", MailboxArg)
	}
	return mailbox, nil
}

// StringArg returns a string argument, or def when it is absent.
func StringArg(args map[string]any, name, def string) string {
	if v, ok := args[name].(string); ok {
		return v
	}
	return def
}

// RequiredStringArg returns a non-empty string argument.
func RequiredStringArg(args map[string]any, name string) (string, error) {
	v, ok := args[name].(string)
	if !ok || v == "" {
		return "", fmt.Errorf("%s is required", name)
	}
	return v, nil
}

// IntArg returns an integer argument, or def when it is absent. JSON numbers
// arrive as float64; numeric strings are accepted too.
func IntArg(args map[string]any, name string, def int) (int, error) {
	switch v := args[name].(type) {
	case nil:
		return def, nil
	case float64:
		if v != float64(int(v)) {
			return 0, fmt.Errorf("%s must be a whole number", name)
		}
		return int(v), nil
	case int:
		return v, nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, fmt.Errorf("%s must be a number", name)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("%s must be a number", name)
	}
}

// BoolArg returns a boolean argument, or def when it is absent.
func BoolArg(args map[string]any, name string, def bool) bool {
	switch v := args[name].(type) {
	case bool:
		return v
	case string:
		switch strings.ToLower(v) {
		case "true", "yes", "1":
			return true
		case "false", "no", "0":
			return false
		}
	}
	return def
}

// ParseStringOrArray parses a parameter that can be either a single string or
// an array of strings. A missing parameter yields nil.
func ParseStringOrArray(param any, paramName string) ([]string, error) {
	if param == nil {
		return nil, nil
	}

	var result []string

	switch v := param.(type) {
	case string:
		if v == "" {
			return nil, nil
		}
		result = []string{v}
	case []string:
		result = append(result, v...)
	case []any:
		for i, item := range v {
			str, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%s[%d] must be a string", paramName, i)
			}
			if str == "" {
				return nil, fmt.Errorf("%s[%d] cannot be empty", paramName, i)
			}
			result = append(result, str)
		}
	default:
		return nil, fmt.Errorf("%s must be a string or array of strings", paramName)
	}

	return result, nil
}
