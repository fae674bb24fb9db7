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
	"testing"

	"github.com/apex/log"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"gitlab.com/project-nan/pubrelay/common"
	"gitlab.com/project-nan/pubrelay/storage"
)

func TestChannelPolicyLifecycle(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)
	testName := "ut-channel-lifecycle"

	utCtxt, utCtxtCancel := context.WithCancel(context.Background())
	defer utCtxtCancel()

	uut, err := DefinePolicyStore(storage.CreateInMemoryStorage())
	assert.Nil(err)

	// Case 0: operate on an unknown channel
	{
		exists, err := uut.Exists(fmt.Sprintf("%s-00", testName), utCtxt)
		assert.Nil(err)
		assert.False(exists)
		_, err = uut.GetRules(fmt.Sprintf("%s-00", testName), utCtxt)
		assert.True(common.IsNotFoundError(err))
		_, err = uut.HasAccess("someone", fmt.Sprintf("%s-00", testName), utCtxt)
		assert.True(common.IsNotFoundError(err))
		assert.True(common.IsNotFoundError(uut.Delete(fmt.Sprintf("%s-00", testName), utCtxt)))
	}

	// Case 1: a channel with no name is rejected
	assert.True(common.IsBadRequestError(uut.Create("", Rules{IsPublic: true}, utCtxt)))

	// Case 2: create a channel
	channel2 := fmt.Sprintf("%s-02-%s", testName, uuid.New().String())
	{
		assert.Nil(uut.Create(channel2, Rules{MaxSubscribers: 4}, utCtxt))
		exists, err := uut.Exists(channel2, utCtxt)
		assert.Nil(err)
		assert.True(exists)
		rules, err := uut.GetRules(channel2, utCtxt)
		assert.Nil(err)
		assert.False(rules.IsPublic)
		assert.Equal(4, rules.MaxSubscribers)
	}
	// duplicate creation fails with conflict
	{
		err := uut.Create(channel2, Rules{IsPublic: true}, utCtxt)
		assert.True(common.IsConflictError(err))
	}
	// after deletion the name can be reused
	{
		assert.Nil(uut.Delete(channel2, utCtxt))
		assert.Nil(uut.Create(channel2, Rules{IsPublic: true}, utCtxt))
		rules, err := uut.GetRules(channel2, utCtxt)
		assert.Nil(err)
		assert.True(rules.IsPublic)
	}

	// Case 3: a channel with a malformed allow pattern is rejected
	{
		err := uut.Create(
			fmt.Sprintf("%s-03", testName), Rules{AllowedPatterns: []string{"team-(["}}, utCtxt,
		)
		assert.True(common.IsBadRequestError(err))
	}
}

func TestChannelAccessChecks(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)
	testName := "ut-channel-access"

	utCtxt, utCtxtCancel := context.WithCancel(context.Background())
	defer utCtxtCancel()

	uut, err := DefinePolicyStore(storage.CreateInMemoryStorage())
	assert.Nil(err)

	// Case 0: every client passes on a public channel, and grant / revoke
	// against it are rejected
	publicChannel := fmt.Sprintf("%s-public-%s", testName, uuid.New().String())
	{
		assert.Nil(uut.Create(publicChannel, Rules{IsPublic: true}, utCtxt))
		for _, clientID := range []string{"c1", "c2", uuid.New().String()} {
			allowed, err := uut.HasAccess(clientID, publicChannel, utCtxt)
			assert.Nil(err)
			assert.True(allowed)
		}
		assert.True(common.IsBadRequestError(uut.GrantAccess("c1", publicChannel, utCtxt)))
		assert.True(common.IsBadRequestError(uut.RevokeAccess("c1", publicChannel, utCtxt)))
	}

	// Case 1: allow-list on a private channel
	privateChannel := fmt.Sprintf("%s-private-%s", testName, uuid.New().String())
	{
		assert.Nil(uut.Create(privateChannel, Rules{}, utCtxt))
		allowed, err := uut.HasAccess("c1", privateChannel, utCtxt)
		assert.Nil(err)
		assert.False(allowed)
		assert.Nil(uut.GrantAccess("c1", privateChannel, utCtxt))
		allowed, err = uut.HasAccess("c1", privateChannel, utCtxt)
		assert.Nil(err)
		assert.True(allowed)
	}
	// granting again is idempotent
	{
		assert.Nil(uut.GrantAccess("c1", privateChannel, utCtxt))
		rules, err := uut.GetRules(privateChannel, utCtxt)
		assert.Nil(err)
		assert.Len(rules.AllowedClientIDs, 1)
	}
	// revocation takes effect, and is idempotent
	{
		assert.Nil(uut.RevokeAccess("c1", privateChannel, utCtxt))
		allowed, err := uut.HasAccess("c1", privateChannel, utCtxt)
		assert.Nil(err)
		assert.False(allowed)
		assert.Nil(uut.RevokeAccess("c1", privateChannel, utCtxt))
		assert.Nil(uut.RevokeAccess("never-granted", privateChannel, utCtxt))
	}

	// Case 2: allow patterns match against the full client id
	patternChannel := fmt.Sprintf("%s-pattern-%s", testName, uuid.New().String())
	{
		assert.Nil(uut.Create(
			patternChannel, Rules{AllowedPatterns: []string{"sensor-[0-9]+", "admin"}}, utCtxt,
		))
		for clientID, expect := range map[string]bool{
			"sensor-042":     true,
			"admin":          true,
			"sensor-abc":     false,
			"not-sensor-042": false,
			"sensor-042-bis": false,
		} {
			allowed, err := uut.HasAccess(clientID, patternChannel, utCtxt)
			assert.Nil(err)
			assert.Equal(expect, allowed, "client %s", clientID)
		}
	}
}

func TestChannelAccessibleEnumeration(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)
	testName := "ut-channel-enumerate"

	utCtxt, utCtxtCancel := context.WithCancel(context.Background())
	defer utCtxtCancel()

	uut, err := DefinePolicyStore(storage.CreateInMemoryStorage())
	assert.Nil(err)

	clientID := fmt.Sprintf("%s-client-%s", testName, uuid.New().String())

	// One public channel, one granted private channel, one pattern matched
	// private channel, one unrelated private channel
	assert.Nil(uut.Create("enum-public", Rules{IsPublic: true}, utCtxt))
	assert.Nil(uut.Create("enum-granted", Rules{}, utCtxt))
	assert.Nil(uut.GrantAccess(clientID, "enum-granted", utCtxt))
	assert.Nil(uut.Create("enum-pattern", Rules{
		AllowedPatterns: []string{fmt.Sprintf("%s-.+", testName)},
	}, utCtxt))
	assert.Nil(uut.Create("enum-other", Rules{}, utCtxt))

	// The enumeration answers "what private access was this client granted";
	// public channels are excluded by design.
	accessible, err := uut.ListAccessibleChannels(clientID, utCtxt)
	assert.Nil(err)
	assert.Equal([]string{"enum-granted", "enum-pattern"}, accessible)
}
