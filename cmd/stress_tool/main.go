package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

var httpClient *http.Client

func init() {
	// 优化 HTTP Client 配置
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.MaxIdleConns = 2000
	t.MaxIdleConnsPerHost = 2000
	t.MaxConnsPerHost = 2000
	httpClient = &http.Client{
		Transport: t,
		Timeout:   10 * time.Second,
	}
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "server base url")
	users := flag.Int("users", 200, "concurrent users")
	rounds := flag.Int("rounds", 5, "reaction toggles per user")
	flag.Parse()

	// 1. 准备账号与一条评价
	stamp := time.Now().UnixNano()
	tokens := make([]string, *users)
	var wg sync.WaitGroup
	var signupFailed atomic.Int64
	for i := range tokens {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			email := fmt.Sprintf("stress-%d-%d@example.com", stamp, i)
			token, err := signUpAndLogin(*baseURL, email)
			if err != nil {
				signupFailed.Add(1)
				return
			}
			tokens[i] = token
		}(i)
	}
	wg.Wait()
	if tokens[0] == "" {
		fmt.Println("准备账号失败，退出")
		return
	}

	reviewID, err := createReview(*baseURL, tokens[0], "压测专用评价")
	if err != nil {
		fmt.Printf("创建评价失败: %v\n", err)
		return
	}
	fmt.Printf("开始压测：%d 个用户对评价 %d 各切换 %d 次反应 (注册失败 %d)\n", *users, reviewID, *rounds, signupFailed.Load())

	// 2. 并发切换反应
	var ok, busy, failed atomic.Int64
	start := time.Now()
	for _, token := range tokens {
		if token == "" {
			continue
		}
		wg.Add(1)
		go func(token string) {
			defer wg.Done()
			for r := 0; r < *rounds; r++ {
				switch toggleReaction(*baseURL, token, reviewID) {
				case http.StatusOK:
					ok.Add(1)
				case http.StatusConflict:
					busy.Add(1)
				default:
					failed.Add(1)
				}
			}
		}(token)
	}
	wg.Wait()

	duration := time.Since(start)
	total := ok.Load() + busy.Load() + failed.Load()
	fmt.Println("--------------------------------------------------")
	fmt.Printf("压测结束，耗时: %v\n", duration)
	fmt.Printf("总请求数: %d\n", total)
	fmt.Printf("QPS: %.2f\n", float64(total)/duration.Seconds())
	fmt.Printf("成功: %d  忙碌拒绝: %d  失败: %d\n", ok.Load(), busy.Load(), failed.Load())
	fmt.Println("--------------------------------------------------")
}

func post(url, token string, payload any) (int, *envelope, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequest(http.MethodPost, url, body)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, &env, nil
}

func signUpAndLogin(baseURL, email string) (string, error) {
	creds := map[string]string{"email": email, "password": "stress-password-1"}
	if status, env, err := post(baseURL+"/auth/signup", "", creds); err != nil || status != http.StatusOK {
		return "", fmt.Errorf("signup: status %d: %v %v", status, env, err)
	}
	status, env, err := post(baseURL+"/auth/login", "", creds)
	if err != nil || status != http.StatusOK {
		return "", fmt.Errorf("login: status %d: %v", status, err)
	}
	var session struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(env.Data, &session); err != nil {
		return "", err
	}
	return session.Token, nil
}

func createReview(baseURL, token, content string) (int64, error) {
	status, env, err := post(baseURL+"/api/reviews", token, map[string]string{"content": content})
	if err != nil {
		return 0, err
	}
	if status != http.StatusOK {
		return 0, fmt.Errorf("status %d: %s", status, env.Message)
	}
	var result struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(env.Data, &result); err != nil {
		return 0, err
	}
	return result.ID, nil
}

func toggleReaction(baseURL, token string, reviewID int64) int {
	url := fmt.Sprintf("%s/api/reviews/%d/reactions", baseURL, reviewID)
	status, _, err := post(url, token, map[string]string{"kind": "like"})
	if err != nil {
		return 0
	}
	return status
}
