// Copyright (C) 2025 ShopGraph Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import "errors"

// Shared failure classes for external calls. Component packages wrap these
// so the orchestrator can classify any store/search/rerank failure with
// errors.Is without importing every client package.
var (
	// ErrExternalTimeout indicates an external call exceeded its per-call
	// deadline. Recoverable: callers retry boundedly at their own boundary.
	ErrExternalTimeout = errors.New("external call timed out")

	// ErrExternalUnavailable indicates the external service could not be
	// reached or refused the request.
	ErrExternalUnavailable = errors.New("external service unavailable")
)
