package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	BaseURL   = "http://localhost:8080"
	WSURL     = "ws://localhost:8080/ws"
	PairCount = 250 // ⚠️ Start small. Each pair is two users and two sockets.
	MsgCount  = 20  // Messages sent from A to B per pair
)

type AuthResponse struct {
	Token    string `json:"access_token"`
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

func main() {
	log.Printf("🔥 STARTING STRESS TEST: %d Users, %d Messages per pair...", PairCount*2, MsgCount)
	var wg sync.WaitGroup

	for i := 0; i < PairCount; i++ {
		wg.Add(1)
		go func(pairID int) {
			defer wg.Done()
			runPair(pairID)
		}(i)
	}

	wg.Wait()
	log.Println("✅ LOAD TEST COMPLETE")
}

func runPair(pairID int) {
	userA := fmt.Sprintf("u_%d_a", pairID)
	userB := fmt.Sprintf("u_%d_b", pairID)
	pass := "password123"

	authA := authenticate(userA, pass)
	authB := authenticate(userB, pass)
	if authA == nil || authB == nil {
		return // Failed auth
	}

	// B connects first and counts what arrives.
	connB, _, err := websocket.DefaultDialer.Dial(WSURL+"?token="+authB.Token, nil)
	if err != nil {
		log.Printf("❌ pair %d: dial B: %v", pairID, err)
		return
	}
	defer connB.Close()

	received := make(chan struct{}, MsgCount*2)
	go func() {
		for {
			_, _, err := connB.ReadMessage()
			if err != nil {
				return
			}
			received <- struct{}{}
		}
	}()

	connA, _, err := websocket.DefaultDialer.Dial(WSURL+"?token="+authA.Token, nil)
	if err != nil {
		log.Printf("❌ pair %d: dial A: %v", pairID, err)
		return
	}
	defer connA.Close()

	for i := 0; i < MsgCount; i++ {
		frame, _ := json.Marshal(map[string]any{
			"receiver_id": authB.ID,
			"content":     fmt.Sprintf("msg %d from %s", i, userA),
		})
		if err := connA.WriteMessage(websocket.TextMessage, frame); err != nil {
			log.Printf("❌ pair %d: send: %v", pairID, err)
			return
		}
	}

	// Give live delivery a moment, then check B got everything at least once.
	deadline := time.After(10 * time.Second)
	got := 0
	for got < MsgCount {
		select {
		case <-received:
			got++
		case <-deadline:
			log.Printf("⚠️ pair %d: only %d/%d delivered in time", pairID, got, MsgCount)
			return
		}
	}
}

func authenticate(username, password string) *AuthResponse {
	creds, _ := json.Marshal(map[string]string{
		"username": username,
		"email":    username + "@load.test",
		"password": password,
	})

	// Register is allowed to fail on re-runs; login is not.
	res, err := http.Post(BaseURL+"/register", "application/json", bytes.NewReader(creds))
	if err == nil {
		res.Body.Close()
	}

	res, err = http.Post(BaseURL+"/login", "application/json", bytes.NewReader(creds))
	if err != nil {
		log.Printf("❌ login %s: %v", username, err)
		return nil
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		log.Printf("❌ login %s: status %d", username, res.StatusCode)
		return nil
	}

	auth := &AuthResponse{}
	if err := json.NewDecoder(res.Body).Decode(auth); err != nil {
		log.Printf("❌ login %s: decode: %v", username, err)
		return nil
	}
	return auth
}
