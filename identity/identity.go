// Copyright 2022 The pubrelay Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/apex/log"
	"github.com/google/uuid"
	"gitlab.com/project-nan/pubrelay/common"
	"gitlab.com/project-nan/pubrelay/storage"
)

// Record one client identity record
type Record struct {
	// ID is the opaque client identity token
	ID string `json:"id" validate:"required"`
	// Metadata arbitrary caller provided key-value pairs
	Metadata map[string]string `json:"metadata,omitempty"`
	// CreatedAt is when the identity was first issued
	CreatedAt time.Time `json:"created_at"`
}

// Store issues and validates opaque client identities.
//
// Identities expire on a sliding window: every successful validation extends
// the identity's life by the configured TTL.
type Store interface {
	// Generate issue a client identity. If requestedID refers to a still
	// valid identity, that identity is refreshed and returned instead of
	// minting a duplicate; the returned bool indicates this case.
	Generate(
		metadata map[string]string, requestedID string, ctxt context.Context,
	) (Record, bool, error)
	// Validate whether an identity exists and has not expired. Success
	// refreshes the identity's expiration deadline.
	Validate(id string, ctxt context.Context) (bool, error)
	// Refresh extend an identity's life by the TTL. No-op if the identity
	// is absent.
	Refresh(id string, ctxt context.Context) error
	// Get fetch an identity record
	Get(id string, ctxt context.Context) (Record, error)
	// Delete remove an identity record. The subscription and channel access
	// cascade is the caller's responsibility.
	Delete(id string, ctxt context.Context) error
}

// identityStoreImpl implements Store
type identityStoreImpl struct {
	common.Component
	store    storage.KeyValueStore
	tokenTTL time.Duration
}

// DefineIdentityStore create new client identity store
func DefineIdentityStore(
	dataStore storage.KeyValueStore, tokenTTL time.Duration,
) (Store, error) {
	if tokenTTL <= 0 {
		return nil, fmt.Errorf("identity store requires a positive token TTL")
	}
	logTags := log.Fields{"module": "identity", "component": "store"}
	return &identityStoreImpl{
		Component: common.Component{LogTags: logTags},
		store:     dataStore,
		tokenTTL:  tokenTTL,
	}, nil
}

// recordKey logical storage key of a client identity record
func recordKey(id string) string {
	return fmt.Sprintf("identity-record/%s", id)
}

// Generate issue a client identity
func (s *identityStoreImpl) Generate(
	metadata map[string]string, requestedID string, ctxt context.Context,
) (Record, bool, error) {
	if requestedID != "" {
		var existing Record
		err := s.store.Get(recordKey(requestedID), &existing, ctxt)
		if err == nil {
			// Identity already exists and is still valid
			if err := s.Refresh(requestedID, ctxt); err != nil {
				return Record{}, false, err
			}
			log.WithFields(s.LogTags).Debugf(
				"Client %s re-requested its still valid identity", requestedID,
			)
			return existing, true, nil
		}
		if err != storage.ErrKeyNotFound {
			log.WithError(err).WithFields(s.LogTags).Errorf(
				"Unable to check for existing identity %s", requestedID,
			)
			return Record{}, false, common.NewInternalError(
				"unable to check for existing identity: %s", err,
			)
		}
	}

	newRecord := Record{
		ID: requestedID, Metadata: metadata, CreatedAt: time.Now().UTC(),
	}
	if newRecord.ID == "" {
		newRecord.ID = uuid.New().String()
	}
	if err := s.store.SetWithExpiry(
		recordKey(newRecord.ID), newRecord, s.tokenTTL, ctxt,
	); err != nil {
		log.WithError(err).WithFields(s.LogTags).Errorf(
			"Failed to persist new identity %s", newRecord.ID,
		)
		return Record{}, false, common.NewInternalError("failed to persist new identity: %s", err)
	}
	log.WithFields(s.LogTags).Infof("Issued new client identity %s", newRecord.ID)
	return newRecord, false, nil
}

// Validate whether an identity exists and has not expired
func (s *identityStoreImpl) Validate(id string, ctxt context.Context) (bool, error) {
	var existing Record
	err := s.store.Get(recordKey(id), &existing, ctxt)
	if err == storage.ErrKeyNotFound {
		return false, nil
	}
	if err != nil {
		log.WithError(err).WithFields(s.LogTags).Errorf("Unable to read identity %s", id)
		return false, common.NewInternalError("unable to read identity: %s", err)
	}
	// A successful read extends the identity's life
	if err := s.Refresh(id, ctxt); err != nil {
		return false, err
	}
	return true, nil
}

// Refresh extend an identity's life by the TTL
func (s *identityStoreImpl) Refresh(id string, ctxt context.Context) error {
	if _, err := s.store.Expire(recordKey(id), s.tokenTTL, ctxt); err != nil {
		log.WithError(err).WithFields(s.LogTags).Errorf(
			"Failed to refresh expiration of identity %s", id,
		)
		return common.NewInternalError("failed to refresh identity expiration: %s", err)
	}
	return nil
}

// Get fetch an identity record
func (s *identityStoreImpl) Get(id string, ctxt context.Context) (Record, error) {
	var existing Record
	err := s.store.Get(recordKey(id), &existing, ctxt)
	if err == storage.ErrKeyNotFound {
		return Record{}, common.NewNotFoundError("client %s is not known", id)
	}
	if err != nil {
		log.WithError(err).WithFields(s.LogTags).Errorf("Unable to read identity %s", id)
		return Record{}, common.NewInternalError("unable to read identity: %s", err)
	}
	return existing, nil
}

// Delete remove an identity record
func (s *identityStoreImpl) Delete(id string, ctxt context.Context) error {
	err := s.store.Delete(recordKey(id), ctxt)
	if err == storage.ErrKeyNotFound {
		return common.NewNotFoundError("client %s is not known", id)
	}
	if err != nil {
		log.WithError(err).WithFields(s.LogTags).Errorf("Failed to delete identity %s", id)
		return common.NewInternalError("failed to delete identity: %s", err)
	}
	log.WithFields(s.LogTags).Infof("Deleted client identity %s", id)
	return nil
}
