// SPDX-License-Identifier: MIT

package daemon

import "errors"

var (
	// ErrMissingSettings is returned when the settings holder is not provided.
	ErrMissingSettings = errors.New("settings holder is required")

	// ErrMissingAPIHandler is returned when the API handler is not provided.
	ErrMissingAPIHandler = errors.New("API handler is required")

	// ErrMissingPipeline is returned when the pipeline is not provided.
	ErrMissingPipeline = errors.New("pipeline is required")
)
