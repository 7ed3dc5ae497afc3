// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package catalog

import (
	"context"
	"fmt"

	"github.com/AleutianAI/AleutianForge/services/forge/config"
)

// ResolveDSN fetches the warehouse connection string from the secret manager.
//
// Description:
//
//	The DSN is the one credential this service needs for the warehouse and
//	it is never accepted through the conversation; it resolves here, is
//	handed to the pool constructor, and the sealed copy is destroyed. A
//	missing secret is reported as config.ErrSecretNotFound so the lifecycle
//	owner can fall back to the static catalog instead of failing startup.
//
// Inputs:
//   - ctx: Context for cancellation.
//   - secrets: The secret manager. Must not be nil.
//
// Outputs:
//   - string: The DSN.
//   - error: config.ErrSecretNotFound (wrapped) when unset; other errors
//     for backend trouble.
func ResolveDSN(ctx context.Context, secrets *config.SecretManager) (string, error) {
	if secrets == nil {
		return "", fmt.Errorf("catalog: secret manager is nil")
	}

	buf, err := secrets.GetSecret(ctx, config.SecretWarehouseDSN)
	if err != nil {
		return "", fmt.Errorf("catalog: warehouse DSN: %w", err)
	}
	// string(Bytes()) copies before the locked buffer is wiped; the copy
	// lives only as long as pool construction needs it.
	dsn := string(buf.Bytes())
	buf.Destroy()

	return dsn, nil
}
