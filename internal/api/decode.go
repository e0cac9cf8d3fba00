package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/gyaneshwarpardhi/switchrelay/internal/event"
)

var errEmptyBody = errors.New("request body is empty")

// decodePayload reads a webhook body as JSON or, for older homebrew builds,
// as an urlencoded form. The body is capped at maxBytes.
func decodePayload(w http.ResponseWriter, r *http.Request, maxBytes int64) (event.Payload, error) {
	var p event.Payload
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mt == "application/x-www-form-urlencoded" {
		if err := r.ParseForm(); err != nil {
			return p, err
		}
		return payloadFromForm(r.PostForm)
	}

	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&p); err != nil {
		if errors.Is(err, io.EOF) {
			return p, errEmptyBody
		}
		return p, err
	}
	return p, nil
}

func payloadFromForm(form map[string][]string) (event.Payload, error) {
	get := func(k string) string {
		if v := form[k]; len(v) > 0 {
			return strings.TrimSpace(v[0])
		}
		return ""
	}
	p := event.Payload{
		Serial:       get("serial"),
		HOSVersion:   get("hos_version"),
		AMSVersion:   get("ams_version"),
		Action:       get("action"),
		TitleID:      get("title_id"),
		TitleVersion: get("title_version"),
		TitleName:    get("title_name"),
	}
	if raw := get("controller_count"); raw != "" {
		n, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return p, fmt.Errorf("controller_count: %w", err)
		}
		p.ControllerCount = &n
	}
	return p, nil
}
