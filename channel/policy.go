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

package channel

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/apex/log"
	"gitlab.com/project-nan/pubrelay/common"
	"gitlab.com/project-nan/pubrelay/storage"
)

// Rules per-channel access policy
type Rules struct {
	// IsPublic whether any valid client may subscribe without a grant
	IsPublic bool `json:"is_public"`
	// AllowedClientIDs is the explicit allow-list of client ids
	AllowedClientIDs []string `json:"allowed_client_ids,omitempty"`
	// AllowedPatterns is an ordered list of regular expressions; a client id
	// matching any pattern is allowed
	AllowedPatterns []string `json:"allowed_patterns,omitempty"`
	// MaxSubscribers caps the channel's subscriber count. Zero means no cap.
	MaxSubscribers int `json:"max_subscribers" validate:"gte=0"`
}

// policyRecord one channel policy record as persisted
type policyRecord struct {
	Name string `json:"name" validate:"required"`
	Rules
	CreatedAt time.Time `json:"created_at"`
}

// PolicyStore persists per-channel access rules.
//
// HasAccess is evaluated fresh against the persisted rules on every call; the
// broadcast engine relies on this so that a revocation takes effect on the
// very next publish.
type PolicyStore interface {
	// Create record a new channel policy. Fails with Conflict if the channel
	// already has one.
	Create(name string, rules Rules, ctxt context.Context) error
	// Exists whether a channel has a policy record
	Exists(name string, ctxt context.Context) (bool, error)
	// GetRules fetch a channel's access rules
	GetRules(name string, ctxt context.Context) (Rules, error)
	// HasAccess whether a client may use a channel
	HasAccess(clientID string, name string, ctxt context.Context) (bool, error)
	// GrantAccess add a client to a private channel's allow-list. Idempotent.
	GrantAccess(clientID string, name string, ctxt context.Context) error
	// RevokeAccess remove a client from a private channel's allow-list.
	// Succeeds even if the client was never listed.
	RevokeAccess(clientID string, name string, ctxt context.Context) error
	// ListAccessibleChannels fetch the private channels a client has been
	// explicitly granted access to, by allow-list or pattern. Public
	// channels are not part of this enumeration.
	ListAccessibleChannels(clientID string, ctxt context.Context) ([]string, error)
	// Delete remove a channel policy record. The subscription and history
	// cascade is the caller's responsibility.
	Delete(name string, ctxt context.Context) error
}

// policyStoreImpl implements PolicyStore
type policyStoreImpl struct {
	common.Component
	store storage.KeyValueStore
}

const policyKeyPrefix = "channel-policy/"

// DefinePolicyStore create new channel policy store
func DefinePolicyStore(dataStore storage.KeyValueStore) (PolicyStore, error) {
	logTags := log.Fields{"module": "channel", "component": "policy-store"}
	return &policyStoreImpl{
		Component: common.Component{LogTags: logTags}, store: dataStore,
	}, nil
}

// policyKey logical storage key of a channel policy record
func policyKey(name string) string {
	return fmt.Sprintf("%s%s", policyKeyPrefix, name)
}

// readPolicy fetch a channel's policy record
func (s *policyStoreImpl) readPolicy(
	name string, ctxt context.Context,
) (policyRecord, error) {
	var record policyRecord
	err := s.store.Get(policyKey(name), &record, ctxt)
	if err == storage.ErrKeyNotFound {
		return policyRecord{}, common.NewNotFoundError("channel %s is not known", name)
	}
	if err != nil {
		log.WithError(err).WithFields(s.LogTags).Errorf(
			"Unable to read policy of channel %s", name,
		)
		return policyRecord{}, common.NewInternalError("unable to read channel policy: %s", err)
	}
	return record, nil
}

// writePolicy persist a channel's policy record
func (s *policyStoreImpl) writePolicy(record policyRecord, ctxt context.Context) error {
	if err := s.store.Set(policyKey(record.Name), record, ctxt); err != nil {
		log.WithError(err).WithFields(s.LogTags).Errorf(
			"Failed to update policy of channel %s", record.Name,
		)
		return common.NewInternalError("failed to update channel policy: %s", err)
	}
	return nil
}

// Create record a new channel policy
func (s *policyStoreImpl) Create(name string, rules Rules, ctxt context.Context) error {
	if name == "" {
		return common.NewBadRequestError("channel name is required")
	}
	// The patterns must at least compile
	for _, pattern := range rules.AllowedPatterns {
		if _, err := regexp.Compile(pattern); err != nil {
			return common.NewBadRequestError(
				"allow pattern %s of channel %s does not compile: %s", pattern, name, err,
			)
		}
	}
	existing, err := s.Exists(name, ctxt)
	if err != nil {
		return err
	}
	if existing {
		return common.NewConflictError("channel %s already exists", name)
	}
	record := policyRecord{Name: name, Rules: rules, CreatedAt: time.Now().UTC()}
	if record.AllowedClientIDs == nil {
		record.AllowedClientIDs = []string{}
	}
	if record.AllowedPatterns == nil {
		record.AllowedPatterns = []string{}
	}
	if err := s.writePolicy(record, ctxt); err != nil {
		return err
	}
	log.WithFields(s.LogTags).Infof("Defined new channel %s", name)
	return nil
}

// Exists whether a channel has a policy record
func (s *policyStoreImpl) Exists(name string, ctxt context.Context) (bool, error) {
	var record policyRecord
	err := s.store.Get(policyKey(name), &record, ctxt)
	if err == storage.ErrKeyNotFound {
		return false, nil
	}
	if err != nil {
		log.WithError(err).WithFields(s.LogTags).Errorf(
			"Unable to check for channel %s", name,
		)
		return false, common.NewInternalError("unable to check for channel: %s", err)
	}
	return true, nil
}

// GetRules fetch a channel's access rules
func (s *policyStoreImpl) GetRules(name string, ctxt context.Context) (Rules, error) {
	record, err := s.readPolicy(name, ctxt)
	if err != nil {
		return Rules{}, err
	}
	return record.Rules, nil
}

// ruleAllows whether a client id passes a rule set
func ruleAllows(rules Rules, clientID string) bool {
	if rules.IsPublic {
		return true
	}
	for _, allowed := range rules.AllowedClientIDs {
		if allowed == clientID {
			return true
		}
	}
	// Patterns are matched against the full client id string, in order
	for _, pattern := range rules.AllowedPatterns {
		matched, err := regexp.MatchString(
			fmt.Sprintf("^(?:%s)$", pattern), clientID,
		)
		if err == nil && matched {
			return true
		}
	}
	return false
}

// HasAccess whether a client may use a channel
func (s *policyStoreImpl) HasAccess(
	clientID string, name string, ctxt context.Context,
) (bool, error) {
	record, err := s.readPolicy(name, ctxt)
	if err != nil {
		return false, err
	}
	return ruleAllows(record.Rules, clientID), nil
}

// GrantAccess add a client to a private channel's allow-list
func (s *policyStoreImpl) GrantAccess(
	clientID string, name string, ctxt context.Context,
) error {
	record, err := s.readPolicy(name, ctxt)
	if err != nil {
		return err
	}
	if record.IsPublic {
		return common.NewBadRequestError(
			"channel %s is public; granting access is meaningless", name,
		)
	}
	for _, allowed := range record.AllowedClientIDs {
		if allowed == clientID {
			return nil
		}
	}
	record.AllowedClientIDs = append(record.AllowedClientIDs, clientID)
	if err := s.writePolicy(record, ctxt); err != nil {
		return err
	}
	log.WithFields(s.LogTags).Infof("Granted client %s access to channel %s", clientID, name)
	return nil
}

// RevokeAccess remove a client from a private channel's allow-list
func (s *policyStoreImpl) RevokeAccess(
	clientID string, name string, ctxt context.Context,
) error {
	record, err := s.readPolicy(name, ctxt)
	if err != nil {
		return err
	}
	if record.IsPublic {
		return common.NewBadRequestError(
			"channel %s is public; revoking access is meaningless", name,
		)
	}
	remaining := make([]string, 0, len(record.AllowedClientIDs))
	for _, allowed := range record.AllowedClientIDs {
		if allowed != clientID {
			remaining = append(remaining, allowed)
		}
	}
	record.AllowedClientIDs = remaining
	if err := s.writePolicy(record, ctxt); err != nil {
		return err
	}
	log.WithFields(s.LogTags).Infof("Revoked client %s access to channel %s", clientID, name)
	return nil
}

// ListAccessibleChannels fetch the private channels a client has explicit access to
func (s *policyStoreImpl) ListAccessibleChannels(
	clientID string, ctxt context.Context,
) ([]string, error) {
	keys, err := s.store.ListKeys(policyKeyPrefix, ctxt)
	if err != nil {
		log.WithError(err).WithFields(s.LogTags).Error("Unable to list channel policies")
		return nil, common.NewInternalError("unable to list channel policies: %s", err)
	}
	accessible := []string{}
	for _, key := range keys {
		name := strings.TrimPrefix(key, policyKeyPrefix)
		record, err := s.readPolicy(name, ctxt)
		if err != nil {
			// Record disappeared between list and read
			log.WithError(err).WithFields(s.LogTags).Debugf(
				"Skipping channel %s during accessibility scan", name,
			)
			continue
		}
		if record.IsPublic {
			continue
		}
		if ruleAllows(record.Rules, clientID) {
			accessible = append(accessible, name)
		}
	}
	sort.Strings(accessible)
	return accessible, nil
}

// Delete remove a channel policy record
func (s *policyStoreImpl) Delete(name string, ctxt context.Context) error {
	err := s.store.Delete(policyKey(name), ctxt)
	if err == storage.ErrKeyNotFound {
		return common.NewNotFoundError("channel %s is not known", name)
	}
	if err != nil {
		log.WithError(err).WithFields(s.LogTags).Errorf(
			"Failed to delete policy of channel %s", name,
		)
		return common.NewInternalError("failed to delete channel policy: %s", err)
	}
	log.WithFields(s.LogTags).Infof("Deleted channel %s", name)
	return nil
}
