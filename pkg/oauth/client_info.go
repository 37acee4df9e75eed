package oauth

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
)

// ClientInfo is the user identity pair carried by the client_info payload.
// Both fields are empty when client_info is absent.
type ClientInfo struct {
	UID  string `json:"uid"`
	UTID string `json:"utid"`
}

// HomeAccountID returns uid.utid, or uid alone when utid is empty.
func (c *ClientInfo) HomeAccountID() string {
	if c == nil {
		return ""
	}
	if c.UTID == "" {
		return c.UID
	}
	return c.UID + "." + c.UTID
}

// Base64Decoder decodes base64 and base64url strings.
type Base64Decoder interface {
	Base64Decode(input string) (string, error)
}

// ClientInfoDecoder turns a raw client_info value into a ClientInfo.
type ClientInfoDecoder interface {
	Decode(raw string) (*ClientInfo, error)
}

// ClientInfoCodec decodes client_info payloads.
type ClientInfoCodec struct {
	decoder Base64Decoder
}

// NewClientInfoCodec creates a codec. A nil decoder uses the package default,
// which accepts padded or unpadded standard and URL-safe alphabets.
func NewClientInfoCodec(decoder Base64Decoder) *ClientInfoCodec {
	if decoder == nil {
		decoder = defaultBase64{}
	}
	return &ClientInfoCodec{decoder: decoder}
}

// Decode decodes raw. An empty raw value yields an empty ClientInfo.
func (c *ClientInfoCodec) Decode(raw string) (*ClientInfo, error) {
	if strings.TrimSpace(raw) == "" {
		return &ClientInfo{}, nil
	}

	decoded, err := c.decoder.Base64Decode(raw)
	if err != nil {
		return nil, &ClientInfoDecodingError{Reason: "invalid base64", Err: err}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(decoded), &fields); err != nil {
		return nil, &ClientInfoDecodingError{Reason: "payload is not a json object", Err: stripJSONDetail(err)}
	}
	if fields == nil {
		return nil, &ClientInfoDecodingError{Reason: "payload is not a json object"}
	}

	info := &ClientInfo{}
	if err := unmarshalOptionalString(fields, "uid", &info.UID); err != nil {
		return nil, &ClientInfoDecodingError{Reason: "uid is not a string"}
	}
	if err := unmarshalOptionalString(fields, "utid", &info.UTID); err != nil {
		return nil, &ClientInfoDecodingError{Reason: "utid is not a string"}
	}
	return info, nil
}

func unmarshalOptionalString(fields map[string]json.RawMessage, key string, dest *string) error {
	raw, ok := fields[key]
	if !ok || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, dest)
}

// stripJSONDetail drops syntax error text, which can quote payload bytes.
func stripJSONDetail(err error) error {
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return errors.New("malformed json")
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return errors.New("unexpected json type " + typeErr.Value)
	}
	return errors.New("malformed json")
}

// StripPolicyFromUID removes a trailing "-<policy>" from uid, where policy is
// the last path segment of a policy-based (B2C) authority URL.
func StripPolicyFromUID(uid, authorityURL string) string {
	policy := lastPathSegment(authorityURL)
	if policy == "" {
		return uid
	}

	suffix := "-" + policy
	for len(uid) > len(suffix) && strings.HasSuffix(uid, suffix) {
		uid = strings.TrimSuffix(uid, suffix)
	}
	return uid
}

func lastPathSegment(rawURL string) string {
	path := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		path = u.Path
	}
	path = strings.TrimSuffix(path, "/")
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[i+1:]
	}
	return path
}

// defaultBase64 is the Base64Decoder used when no crypto provider is given.
type defaultBase64 struct{}

func (defaultBase64) Base64Decode(input string) (string, error) {
	b, err := decodeBase64(input)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// decodeBase64 accepts padded or unpadded input in either alphabet.
func decodeBase64(input string) ([]byte, error) {
	s := strings.TrimRight(strings.TrimSpace(input), "=")
	if b, err := base64.RawURLEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.RawStdEncoding.DecodeString(s)
}
