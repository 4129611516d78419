// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package core

import (
	"fmt"
	"strings"
)

// ValidateRoute validates a Route according to domain rules.
//
// Validation rules:
//   - FileName must not be empty and must be a bare name (no directories)
//   - Table must not be empty
//   - TextFields must contain at least one field
func ValidateRoute(route *Route) error {
	if route == nil {
		return fmt.Errorf("%w: route is nil", ErrInvalidRoute)
	}

	if route.FileName == "" {
		return fmt.Errorf("%w: %w", ErrInvalidRoute, ErrEmptyFileName)
	}

	if strings.ContainsAny(route.FileName, `/\`) {
		return fmt.Errorf("%w: %w: %q", ErrInvalidRoute, ErrFileNameHasPath, route.FileName)
	}

	if route.Table == "" {
		return fmt.Errorf("%w: %w", ErrInvalidRoute, ErrEmptyTable)
	}

	if len(route.TextFields) == 0 {
		return fmt.Errorf("%w: %w", ErrInvalidRoute, ErrNoTextFields)
	}

	return nil
}

// ValidateRow validates a Row before it is written to a store.
//
// Validation rules:
//   - RecordID must not be empty
//
// NOT validated:
//   - Vector (dimension is owned by the embedding provider)
func ValidateRow(row *Row) error {
	if row == nil {
		return fmt.Errorf("%w: row is nil", ErrInvalidRow)
	}

	if strings.TrimSpace(row.RecordID) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidRow, ErrEmptyRecordID)
	}

	return nil
}
