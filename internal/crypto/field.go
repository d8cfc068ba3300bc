package crypto

// FieldState distinguishes "never stored", "decrypted fine" and "stored but
// unreadable" so callers do not confuse a failed decrypt with a field the
// user left empty.
type FieldState int

const (
	FieldAbsent FieldState = iota
	FieldOK
	FieldFailed
)

// Field is the result of decrypting an optional stored field.
type Field struct {
	State FieldState
	Value string
}

// DecryptField decrypts an optional stored field. An empty stored value is
// Absent; a decrypt failure is Failed with an empty value.
func (c *Codec) DecryptField(encoded string) Field {
	if encoded == "" {
		return Field{State: FieldAbsent}
	}
	plain, err := c.Decrypt(encoded)
	if err != nil {
		return Field{State: FieldFailed}
	}
	return Field{State: FieldOK, Value: plain}
}

// Or returns the decrypted value, or fallback when the field is absent or
// unreadable.
func (f Field) Or(fallback string) string {
	if f.State == FieldOK && f.Value != "" {
		return f.Value
	}
	return fallback
}
