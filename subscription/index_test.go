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

package subscription

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/apex/log"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"gitlab.com/project-nan/pubrelay/storage"
)

func TestSubscriptionIndexBidirectional(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)
	testName := "ut-sub-index"

	utCtxt, utCtxtCancel := context.WithCancel(context.Background())
	defer utCtxtCancel()

	uut, err := DefineIndex(storage.CreateInMemoryStorage())
	assert.Nil(err)

	client1 := fmt.Sprintf("%s-c1-%s", testName, uuid.New().String())
	client2 := fmt.Sprintf("%s-c2-%s", testName, uuid.New().String())

	// Case 0: nothing recorded
	{
		channels, err := uut.GetClientChannels(client1, utCtxt)
		assert.Nil(err)
		assert.Empty(channels)
		subscribers, err := uut.GetChannelSubscribers("chan-a", utCtxt)
		assert.Nil(err)
		assert.Empty(subscribers)
		subscribed, err := uut.IsSubscribed(client1, "chan-a", utCtxt)
		assert.Nil(err)
		assert.False(subscribed)
	}

	// Case 1: both directions reflect a subscription
	{
		assert.Nil(uut.Subscribe(client1, "chan-a", utCtxt))
		assert.Nil(uut.Subscribe(client1, "chan-b", utCtxt))
		assert.Nil(uut.Subscribe(client2, "chan-a", utCtxt))

		channels, err := uut.GetClientChannels(client1, utCtxt)
		assert.Nil(err)
		assert.Equal([]string{"chan-a", "chan-b"}, channels)

		subscribers, err := uut.GetChannelSubscribers("chan-a", utCtxt)
		assert.Nil(err)
		assert.Equal([]string{client1, client2}, subscribers)

		subscribed, err := uut.IsSubscribed(client1, "chan-a", utCtxt)
		assert.Nil(err)
		assert.True(subscribed)
	}

	// Case 2: subscribing again changes nothing
	{
		assert.Nil(uut.Subscribe(client1, "chan-a", utCtxt))
		channels, err := uut.GetClientChannels(client1, utCtxt)
		assert.Nil(err)
		assert.Len(channels, 2)
	}

	// Case 3: unsubscribe clears both directions, and is idempotent
	{
		assert.Nil(uut.Unsubscribe(client1, "chan-a", utCtxt))
		subscribed, err := uut.IsSubscribed(client1, "chan-a", utCtxt)
		assert.Nil(err)
		assert.False(subscribed)
		subscribers, err := uut.GetChannelSubscribers("chan-a", utCtxt)
		assert.Nil(err)
		assert.Equal([]string{client2}, subscribers)

		assert.Nil(uut.Unsubscribe(client1, "chan-a", utCtxt))
		assert.Nil(uut.Unsubscribe(client1, "never-subscribed", utCtxt))
	}
}

func TestSubscriptionIndexConcurrentMutation(t *testing.T) {
	assert := assert.New(t)
	testName := "ut-sub-concurrent"

	utCtxt, utCtxtCancel := context.WithCancel(context.Background())
	defer utCtxtCancel()

	uut, err := DefineIndex(storage.CreateInMemoryStorage())
	assert.Nil(err)

	// Case 0: parallel subscribes to one channel must all be recorded
	channelName := fmt.Sprintf("%s-chan-%s", testName, uuid.New().String())
	clients := make([]string, 8)
	for itr := 0; itr < len(clients); itr++ {
		clients[itr] = fmt.Sprintf("%s-c%d", testName, itr)
	}
	{
		wg := sync.WaitGroup{}
		for _, clientID := range clients {
			wg.Add(1)
			go func(clientID string) {
				defer wg.Done()
				assert.Nil(uut.Subscribe(clientID, channelName, utCtxt))
			}(clientID)
		}
		wg.Wait()
		subscribers, err := uut.GetChannelSubscribers(channelName, utCtxt)
		assert.Nil(err)
		assert.Equal(clients, subscribers)
	}

	// Case 1: parallel unsubscribes leave the channel empty
	{
		wg := sync.WaitGroup{}
		for _, clientID := range clients {
			wg.Add(1)
			go func(clientID string) {
				defer wg.Done()
				assert.Nil(uut.Unsubscribe(clientID, channelName, utCtxt))
			}(clientID)
		}
		wg.Wait()
		subscribers, err := uut.GetChannelSubscribers(channelName, utCtxt)
		assert.Nil(err)
		assert.Empty(subscribers)
	}

	// Case 2: one client subscribing to many channels in parallel keeps them all
	clientID := fmt.Sprintf("%s-cx-%s", testName, uuid.New().String())
	{
		wg := sync.WaitGroup{}
		for itr := 0; itr < 8; itr++ {
			wg.Add(1)
			go func(itr int) {
				defer wg.Done()
				assert.Nil(uut.Subscribe(
					clientID, fmt.Sprintf("%s-fan-%d", testName, itr), utCtxt,
				))
			}(itr)
		}
		wg.Wait()
		channels, err := uut.GetClientChannels(clientID, utCtxt)
		assert.Nil(err)
		assert.Len(channels, 8)
	}
}

func TestSubscriptionIndexPurges(t *testing.T) {
	assert := assert.New(t)
	log.SetLevel(log.DebugLevel)
	testName := "ut-sub-purge"

	utCtxt, utCtxtCancel := context.WithCancel(context.Background())
	defer utCtxtCancel()

	uut, err := DefineIndex(storage.CreateInMemoryStorage())
	assert.Nil(err)

	client1 := fmt.Sprintf("%s-c1-%s", testName, uuid.New().String())
	client2 := fmt.Sprintf("%s-c2-%s", testName, uuid.New().String())

	assert.Nil(uut.Subscribe(client1, "purge-a", utCtxt))
	assert.Nil(uut.Subscribe(client1, "purge-b", utCtxt))
	assert.Nil(uut.Subscribe(client2, "purge-a", utCtxt))

	// Case 0: purging a channel removes it from each client's set
	{
		removed, err := uut.PurgeChannel("purge-a", utCtxt)
		assert.Nil(err)
		assert.Equal(2, removed)
		channels, err := uut.GetClientChannels(client1, utCtxt)
		assert.Nil(err)
		assert.Equal([]string{"purge-b"}, channels)
		channels, err = uut.GetClientChannels(client2, utCtxt)
		assert.Nil(err)
		assert.Empty(channels)
	}

	// Case 1: purging a client removes it from each channel's set
	{
		removed, err := uut.PurgeClient(client1, utCtxt)
		assert.Nil(err)
		assert.Equal(1, removed)
		subscribers, err := uut.GetChannelSubscribers("purge-b", utCtxt)
		assert.Nil(err)
		assert.Empty(subscribers)
	}

	// Case 2: purging with nothing recorded is harmless
	{
		removed, err := uut.PurgeChannel("purge-a", utCtxt)
		assert.Nil(err)
		assert.Equal(0, removed)
		removed, err = uut.PurgeClient(client1, utCtxt)
		assert.Nil(err)
		assert.Equal(0, removed)
	}
}
