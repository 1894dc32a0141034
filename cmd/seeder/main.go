// Command seeder fills a running instance with fake users, posts, reactions,
// comments and chat messages through the JSON API.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"glassy-social/internal/docstore"
	"glassy-social/internal/gateway"

	"github.com/brianvoe/gofakeit/v6"
)

type seedUser struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`

	uid   string
	token string
}

var (
	baseURL = getEnv("SEED_BASE_URL", "http://localhost:8080")
	client  = &http.Client{Timeout: 10 * time.Second}
)

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func main() {
	gofakeit.Seed(time.Now().UnixNano())

	nUsers := getInt("SEED_USERS", 5)
	nPosts := getInt("SEED_POSTS_PER_USER", 3)
	nMessages := getInt("SEED_MESSAGES", 20)

	// --- USERS ---
	var users []*seedUser
	for i := 0; i < nUsers; i++ {
		u := &seedUser{
			Email:       gofakeit.Email(),
			Password:    "123456",
			DisplayName: gofakeit.Name(),
		}
		if !signUp(u) {
			continue
		}
		users = append(users, u)
	}
	if len(users) == 0 {
		log.Fatal("no users created, aborting seeding")
	}
	// token endpoint check with the first account
	signIn(users[0])

	// --- POSTS ---
	var posts []string
	for _, u := range users {
		for i := 0; i < nPosts; i++ {
			if id := createPost(u, gofakeit.Sentence(gofakeit.Number(4, 16))); id != "" {
				posts = append(posts, id)
			}
		}
	}

	// --- REACTIONS & COMMENTS ---
	for _, id := range posts {
		for _, u := range users {
			if gofakeit.Bool() {
				react(u, id, gofakeit.RandomString(docstore.ReactionKinds))
			}
			if gofakeit.Number(1, 4) == 1 {
				comment(u, id, gofakeit.Phrase())
			}
		}
	}

	// --- CHAT ---
	var last *docstore.ChatMessage
	for i := 0; i < nMessages; i++ {
		u := users[gofakeit.Number(0, len(users)-1)]
		var reply *docstore.ReplyRef
		if last != nil && gofakeit.Number(1, 5) == 1 {
			reply = &docstore.ReplyRef{ID: last.ID, Content: last.Content, SenderName: last.SenderName}
		}
		if m := sendMessage(u, gofakeit.HipsterSentence(gofakeit.Number(3, 10)), reply); m != nil {
			last = m
		}
	}

	log.Printf("seeded %d users, %d posts, %d messages", len(users), len(posts), nMessages)
}

func do(method, path, token string, body, out any) (int, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return 0, err
		}
	}
	req, err := http.NewRequest(method, baseURL+path, &buf)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("%s %s: %s", method, path, resp.Status)
	}
	if out != nil {
		return resp.StatusCode, json.NewDecoder(resp.Body).Decode(out)
	}
	return resp.StatusCode, nil
}

type tokenResp struct {
	Token string `json:"token"`
	User  struct {
		UID string `json:"uid"`
	} `json:"user"`
}

func signUp(u *seedUser) bool {
	var res tokenResp
	if _, err := do(http.MethodPost, "/api/auth/signup", "", u, &res); err != nil {
		log.Println("Error in signUp:", err)
		return false
	}
	u.uid, u.token = res.User.UID, res.Token
	log.Printf("signUp: %s (%s)", u.Email, u.uid)
	return true
}

func signIn(u *seedUser) {
	var res tokenResp
	if _, err := do(http.MethodPost, "/api/auth/token", "", u, &res); err != nil {
		log.Println("Error in signIn:", err)
		return
	}
	u.token = res.Token
	log.Printf("signIn: %s", u.Email)
}

func createPost(u *seedUser, text string) string {
	var p docstore.Post
	if _, err := do(http.MethodPost, "/api/posts", u.token, map[string]string{"text": text}, &p); err != nil {
		log.Println("Error in createPost:", err)
		return ""
	}
	log.Printf("createPost: %s by %s", p.ID, u.DisplayName)
	return p.ID
}

func react(u *seedUser, postID, kind string) {
	if _, err := do(http.MethodPost, "/api/posts/"+postID+"/reactions", u.token, map[string]string{"type": kind}, nil); err != nil {
		log.Println("Error in react:", err)
	}
}

func comment(u *seedUser, postID, content string) {
	if _, err := do(http.MethodPost, "/api/posts/"+postID+"/comments", u.token, map[string]string{"content": content}, nil); err != nil {
		log.Println("Error in comment:", err)
	}
}

func sendMessage(u *seedUser, content string, reply *docstore.ReplyRef) *docstore.ChatMessage {
	body := map[string]any{"content": content}
	if reply != nil {
		body["replyTo"] = reply
	}
	var m docstore.ChatMessage
	if _, err := do(http.MethodPost, "/api/chats/"+gateway.DefaultRoom+"/messages", u.token, body, &m); err != nil {
		log.Println("Error in sendMessage:", err)
		return nil
	}
	return &m
}
