package token

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"time"
)

// Row layout (big endian):
//
//	[0]    format version
//	[1]    blacklisted flag (0/1)
//	[2]    type code
//	[3]    subject length, then subject bytes
//	[n]    id length, then id bytes
//	[m:+8] expires_at unix seconds
//
// The first three bytes sit at fixed offsets so the store's Lua scripts can
// read them without a full decode.
const (
	rowFormatVersion = 1

	offsetBlacklisted = 1
	offsetType        = 2
)

var (
	errRowTooShort      = errors.New("token row too short")
	errRowVersion       = errors.New("unsupported token row version")
	errRowFieldTooLong  = errors.New("token row field too long")
	errRowTypeUnknown   = errors.New("unknown token row type")
	errRowTrailingBytes = errors.New("token row has trailing bytes")
)

func typeCode(t Type) (byte, bool) {
	switch t {
	case Refresh:
		return 1, true
	case ResetPassword:
		return 2, true
	case VerifyEmail:
		return 3, true
	default:
		return 0, false
	}
}

func typeFromCode(c byte) (Type, bool) {
	switch c {
	case 1:
		return Refresh, true
	case 2:
		return ResetPassword, true
	case 3:
		return VerifyEmail, true
	default:
		return "", false
	}
}

func encodeRow(t *Token) ([]byte, error) {
	code, ok := typeCode(t.Type)
	if !ok {
		return nil, ErrUnsupportedType
	}
	if len(t.SubjectID) > 255 || len(t.ID) > 255 {
		return nil, errRowFieldTooLong
	}

	var buf bytes.Buffer
	buf.Grow(4 + len(t.SubjectID) + 1 + len(t.ID) + 8)

	buf.WriteByte(rowFormatVersion)
	if t.Blacklisted {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
	buf.WriteByte(code)

	buf.WriteByte(byte(len(t.SubjectID)))
	buf.WriteString(t.SubjectID)
	buf.WriteByte(byte(len(t.ID)))
	buf.WriteString(t.ID)

	if err := binary.Write(&buf, binary.BigEndian, t.ExpiresAt.Unix()); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func decodeRow(data []byte) (*Token, error) {
	if len(data) < 4 {
		return nil, errRowTooShort
	}
	if data[0] != rowFormatVersion {
		return nil, errRowVersion
	}

	typ, ok := typeFromCode(data[offsetType])
	if !ok {
		return nil, errRowTypeUnknown
	}

	r := bytes.NewReader(data[3:])
	subject, err := readString(r)
	if err != nil {
		return nil, err
	}
	id, err := readString(r)
	if err != nil {
		return nil, err
	}

	var expires int64
	if err := binary.Read(r, binary.BigEndian, &expires); err != nil {
		return nil, errRowTooShort
	}
	if r.Len() != 0 {
		return nil, errRowTrailingBytes
	}

	return &Token{
		ID:          id,
		SubjectID:   subject,
		Type:        typ,
		ExpiresAt:   time.Unix(expires, 0),
		Blacklisted: data[offsetBlacklisted] == 1,
	}, nil
}

func readString(r *bytes.Reader) (string, error) {
	n, err := r.ReadByte()
	if err != nil {
		return "", errRowTooShort
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", errRowTooShort
	}
	return string(b), nil
}
