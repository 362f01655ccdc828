package vcontrold

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ackOK is the payload the daemon replies with when a set succeeded.
const ackOK = "OK"

// errorPrefix marks an error reply to a get.
const errorPrefix = "ERR:"

// lookupGetter returns the metadata of name if it can be read.
func lookupGetter(catalog *Catalog, name string) (CommandMeta, error) {
	meta, ok := catalog.Lookup(name)
	if !ok {
		return CommandMeta{}, fmt.Errorf("%w: %q", ErrUnknownCommand, name)
	}
	if meta.Getter == "" {
		return CommandMeta{}, fmt.Errorf("%w: %q cannot be read", ErrUnknownCommand, name)
	}
	return meta, nil
}

// lookupSetter returns the metadata of name if it can be written.
func lookupSetter(catalog *Catalog, name string) (CommandMeta, error) {
	meta, ok := catalog.Lookup(name)
	if !ok {
		return CommandMeta{}, fmt.Errorf("%w: %q", ErrUnknownCommand, name)
	}
	if meta.Setter == "" {
		return CommandMeta{}, fmt.Errorf("%w: %q cannot be written", ErrUnknownCommand, name)
	}
	return meta, nil
}

// GetValue reads command name over s and decodes the reply according to
// the catalog. An unknown command fails before anything is sent.
func GetValue(ctx context.Context, catalog *Catalog, s Session, name string) (Value, error) {
	meta, err := lookupGetter(catalog, name)
	if err != nil {
		return Value{}, err
	}

	if err := s.SendLine(ctx, meta.Getter); err != nil {
		return Value{}, err
	}
	line, err := s.ReadLine(ctx)
	if err != nil {
		return Value{}, err
	}

	payload, err := stripPrompt(line, s.Prompt())
	if err != nil {
		return Value{}, err
	}
	return DecodeValue(meta, payload)
}

// SetValue encodes v according to the catalog, sends it with the setter of
// name and checks the acknowledgement. Unknown commands and values of the
// wrong kind fail before anything is sent.
func SetValue(ctx context.Context, catalog *Catalog, s Session, name string, v Value) error {
	meta, err := lookupSetter(catalog, name)
	if err != nil {
		return err
	}
	formatted, err := EncodeValue(meta, v)
	if err != nil {
		return err
	}

	if err := s.SendLine(ctx, meta.Setter+" "+formatted); err != nil {
		return err
	}
	line, err := s.ReadLine(ctx)
	if err != nil {
		return err
	}
	return checkAck(line, s.Prompt())
}

// checkAck requires the reply payload to be exactly "OK".
func checkAck(line, prompt string) error {
	payload, err := stripPrompt(line, prompt)
	if err != nil {
		return err
	}
	if payload != ackOK {
		return fmt.Errorf("%w: set not acknowledged: %q", ErrProtocol, payload)
	}
	return nil
}

// DecodeValue converts the payload of a get reply, prompt already removed,
// into a Value of the command's declared type. The unit suffix is stripped
// first.
func DecodeValue(meta CommandMeta, payload string) (Value, error) {
	text := strings.TrimSpace(payload)
	if strings.HasPrefix(text, errorPrefix) {
		return Value{}, fmt.Errorf("%w: %s: daemon error: %s", ErrProtocol, meta.Name, strings.TrimSpace(text[len(errorPrefix):]))
	}
	if meta.Unit != "" {
		text = strings.TrimSpace(strings.TrimSuffix(text, meta.Unit))
	}

	switch meta.Type {
	case TypeNumeric:
		f, err := strconv.ParseFloat(text, 64)
		if err != nil || !isFinite(f) {
			return Value{}, fmt.Errorf("%w: %s: %q is not a number", ErrProtocol, meta.Name, text)
		}
		return Decimal(f), nil
	case TypeSwitch:
		return Switch(text == "1" || text == "ON"), nil
	case TypeEnum:
		if !meta.Accepts(text) {
			return Value{}, fmt.Errorf("%w: %s: %q is not an accepted value", ErrProtocol, meta.Name, text)
		}
		return Text(text), nil
	default:
		return Text(text), nil
	}
}

// EncodeValue formats v as the argument of a set command.
func EncodeValue(meta CommandMeta, v Value) (string, error) {
	switch meta.Type {
	case TypeNumeric:
		f, ok := v.AsDecimal()
		if !ok {
			return "", mismatch(meta, v)
		}
		if !isFinite(f) {
			return "", fmt.Errorf("%w: %s: %v is not a finite number", ErrTypeMismatch, meta.Name, f)
		}
		return strconv.FormatFloat(f, 'f', -1, 64), nil
	case TypeSwitch:
		on, ok := v.AsSwitch()
		if !ok {
			return "", mismatch(meta, v)
		}
		if on {
			return "1", nil
		}
		return "0", nil
	case TypeEnum:
		s, ok := v.AsText()
		if !ok {
			return "", mismatch(meta, v)
		}
		if !meta.Accepts(s) {
			return "", fmt.Errorf("%w: %s: %q is not an accepted value", ErrProtocol, meta.Name, s)
		}
		return s, nil
	default:
		s, ok := v.AsText()
		if !ok {
			return "", mismatch(meta, v)
		}
		if strings.ContainsAny(s, "\r\n") {
			return "", fmt.Errorf("%w: %s: text contains a line break", ErrTypeMismatch, meta.Name)
		}
		return s, nil
	}
}

// isFinite rejects NaN and the infinities, which ParseFloat accepts.
func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func mismatch(meta CommandMeta, v Value) error {
	return fmt.Errorf("%w: %s is %s, got %s value", ErrTypeMismatch, meta.Name, meta.Type, v.Kind())
}

// ParseInput converts user input, such as a CLI argument, into a Value
// suitable for meta. Switches accept on/off, true/false and 1/0.
func ParseInput(meta CommandMeta, s string) (Value, error) {
	s = strings.TrimSpace(s)
	switch meta.Type {
	case TypeNumeric:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || !isFinite(f) {
			return Value{}, fmt.Errorf("%w: %s expects a number, got %q", ErrTypeMismatch, meta.Name, s)
		}
		return Decimal(f), nil
	case TypeSwitch:
		switch strings.ToLower(s) {
		case "1", "on", "true":
			return Switch(true), nil
		case "0", "off", "false":
			return Switch(false), nil
		}
		return Value{}, fmt.Errorf("%w: %s expects on or off, got %q", ErrTypeMismatch, meta.Name, s)
	default:
		return Text(s), nil
	}
}
