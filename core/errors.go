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

import "errors"

// Domain validation errors
var (
	// ErrInvalidRoute indicates a Route failed validation.
	ErrInvalidRoute = errors.New("invalid route")

	// ErrInvalidRow indicates a Row failed validation.
	ErrInvalidRow = errors.New("invalid row")

	// ErrEmptyFileName indicates the route FileName field is empty.
	ErrEmptyFileName = errors.New("file name cannot be empty")

	// ErrFileNameHasPath indicates the route FileName contains a directory component.
	ErrFileNameHasPath = errors.New("file name cannot contain path separators")

	// ErrEmptyTable indicates the route Table field is empty.
	ErrEmptyTable = errors.New("table name cannot be empty")

	// ErrNoTextFields indicates the route has no text fields to embed.
	ErrNoTextFields = errors.New("at least one text field is required")

	// ErrEmptyRecordID indicates the row has no recordid value.
	ErrEmptyRecordID = errors.New("recordid cannot be empty")

	// ErrDuplicateRoute indicates two routes share a file name.
	ErrDuplicateRoute = errors.New("duplicate route for file")
)
