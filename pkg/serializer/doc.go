/*
Copyright © 2025 Atlas Authors
SPDX-License-Identifier: Apache-2.0
*/

// Package serializer provides JSON and YAML output writers for CLI results
// and buffered JSON responses for the HTTP surface.
package serializer
