package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

const (
	recordFormatVersionCurrent = 1
)

func Encode(r *Record) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(recordFormatVersionCurrent)

	if err := writeString(&buf, r.IdentityID, "identityID"); err != nil {
		return nil, err
	}

	buf.WriteByte(r.IdentityType)

	if err := writeString(&buf, r.Role, "role"); err != nil {
		return nil, err
	}
	if err := writeString(&buf, r.ProcessID, "processID"); err != nil {
		return nil, err
	}
	if err := writeString(&buf, r.SwitchedTo, "switchedTo"); err != nil {
		return nil, err
	}

	if err := binary.Write(&buf, binary.BigEndian, r.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, r.LastSeenAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, r.ExpiresAt); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func Decode(data []byte) (*Record, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != recordFormatVersionCurrent {
		return nil, errors.New("invalid session record version")
	}

	r := &Record{}

	if r.IdentityID, err = readString(reader); err != nil {
		return nil, err
	}

	identityType, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if identityType != IdentityStaff && identityType != IdentityCandidate {
		return nil, errors.New("invalid identity type tag")
	}
	r.IdentityType = identityType

	if r.Role, err = readString(reader); err != nil {
		return nil, err
	}
	if r.ProcessID, err = readString(reader); err != nil {
		return nil, err
	}
	if r.SwitchedTo, err = readString(reader); err != nil {
		return nil, err
	}

	if err := binary.Read(reader, binary.BigEndian, &r.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &r.LastSeenAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &r.ExpiresAt); err != nil {
		return nil, err
	}

	return r, nil
}

func writeString(buf *bytes.Buffer, s, field string) error {
	if len(s) > 255 {
		return errors.New(field + " too long")
	}
	buf.WriteByte(byte(len(s)))
	buf.WriteString(s)
	return nil
}

func readString(reader *bytes.Reader) (string, error) {
	n, err := reader.ReadByte()
	if err != nil {
		return "", err
	}
	raw := make([]byte, n)
	if _, err := io.ReadFull(reader, raw); err != nil {
		return "", err
	}
	return string(raw), nil
}
