// Copyright (C) 2025 ShopGraph Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package intent

import "errors"

// Sentinel errors for the intent package.
var (
	// ErrClassificationFormat indicates the model output did not contain a
	// parseable <output>...</output> wrapper.
	ErrClassificationFormat = errors.New("classification output malformed")

	// ErrClassificationRejected indicates the wrapper parsed but the tag is
	// not a member of the intent taxonomy.
	ErrClassificationRejected = errors.New("classification outside taxonomy")
)
