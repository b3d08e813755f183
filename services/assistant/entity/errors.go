// Copyright (C) 2025 ShopGraph Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package entity

import "errors"

// ErrExtractionFormat indicates the model output could not be parsed or
// validated into an EntityFilter.
var ErrExtractionFormat = errors.New("entity extraction output malformed")
