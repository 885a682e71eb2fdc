package xgraph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/url"
	"strings"
)

// Transport sends one request and decodes a 2xx body into out.
//
// Non-2xx responses fail with *APIError; a body that does not unmarshal into out
// fails with *DecodeError. A nil out skips decoding. The returned headers have
// lower-cased names.
type Transport interface {
	Send(ctx context.Context, req *Request, out any) (map[string]string, error)
}

// Request describes a single API call.
type Request struct {
	// Endpoint names the operation for rate limiting, metrics and error messages.
	Endpoint string
	Method   string
	URL      string
	// Headers are merged over the transport's session headers.
	Headers map[string]string
	Body    Body
	// Account pins the request to one pooled account by username.
	Account string
}

// Body is a request payload: JSONBody, FormBody or MultipartBody.
type Body interface {
	encode() (payload []byte, contentType string, err error)
}

// JSONBody marshals Value as the request body.
type JSONBody struct {
	Value any
}

func (b JSONBody) encode() ([]byte, string, error) {
	data, err := json.Marshal(b.Value)
	if err != nil {
		return nil, "", fmt.Errorf("marshal json body: %w", err)
	}
	return data, "application/json", nil
}

// FormField is one key/value pair of a form or multipart body.
type FormField struct {
	Key   string
	Value string
}

// FormBody is a url-encoded form. Field order is kept on the wire.
type FormBody []FormField

func (b FormBody) encode() ([]byte, string, error) {
	var sb strings.Builder
	for i, f := range b {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(url.QueryEscape(f.Key))
		sb.WriteByte('=')
		sb.WriteString(url.QueryEscape(f.Value))
	}
	return []byte(sb.String()), "application/x-www-form-urlencoded", nil
}

// MultipartFile is a file part of a MultipartBody.
type MultipartFile struct {
	Field    string
	Filename string
	Data     []byte
}

// MultipartBody is a multipart/form-data payload.
type MultipartBody struct {
	Fields []FormField
	Files  []MultipartFile
}

func (b MultipartBody) encode() ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, f := range b.Fields {
		if err := w.WriteField(f.Key, f.Value); err != nil {
			return nil, "", fmt.Errorf("multipart field %s: %w", f.Key, err)
		}
	}
	for _, f := range b.Files {
		part, err := w.CreateFormFile(f.Field, f.Filename)
		if err != nil {
			return nil, "", fmt.Errorf("multipart file %s: %w", f.Field, err)
		}
		if _, err := part.Write(f.Data); err != nil {
			return nil, "", fmt.Errorf("multipart file %s: %w", f.Field, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart body: %w", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

// decodePayload unmarshals a successful response body into out.
func decodePayload(endpoint string, body []byte, out any) error {
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &DecodeError{Endpoint: endpoint, Err: err}
	}
	return nil
}

// isSuccess reports whether an HTTP status is 2xx.
func isSuccess(status int) bool {
	return status >= 200 && status < 300
}
