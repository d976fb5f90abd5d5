/*
 * Copyright (c) 2025, the video-auto-cut authors. All rights reserved.
 * See LICENSE for license information.
 */

package jsonutil

import (
	"bytes"
	"encoding/json"
)

// UnmarshalLenient decodes data into v, ignoring unknown fields. Used
// for artifact files that may carry fields written by newer builds.
func UnmarshalLenient(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

// UnmarshalWithCheck decodes data into v, rejecting unknown fields.
func UnmarshalWithCheck(data []byte, v interface{}) error {
	d := json.NewDecoder(bytes.NewReader(data))
	d.DisallowUnknownFields()
	return d.Decode(v)
}

func MarshalSilently(v interface{}) []byte {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}

// MarshalIndentSilently is the on-disk flavor: two-space indent with a
// trailing newline, matching the artifact files' committed format.
func MarshalIndentSilently(v interface{}) []byte {
	if v == nil {
		return nil
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil
	}
	return append(data, '\n')
}
