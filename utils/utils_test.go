package utils

import (
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
)

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	k := NewKeyedMutex()
	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock("stock:1:1")
			n := inside.Add(1)
			for {
				m := maxInside.Load()
				if n <= m || maxInside.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(100 * time.Microsecond)
			inside.Add(-1)
			unlock()
		}()
	}
	wg.Wait()
	if maxInside.Load() != 1 {
		t.Fatalf("%d holders at once", maxInside.Load())
	}
	if k.Len() != 0 {
		t.Fatalf("%d entries left after release", k.Len())
	}
}

// Overlapping key sets taken in opposite order must not deadlock.
func TestKeyedMutex_OverlappingSets(t *testing.T) {
	k := NewKeyedMutex()
	done := make(chan struct{})
	go func() {
		var wg sync.WaitGroup
		for i := 0; i < 200; i++ {
			wg.Add(2)
			go func() { defer wg.Done(); k.Lock("a", "b")() }()
			go func() { defer wg.Done(); k.Lock("b", "a", "b")() }()
		}
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("deadlock")
	}
}

func TestKeyedMutex_DistinctKeysDoNotBlock(t *testing.T) {
	k := NewKeyedMutex()
	unlockA := k.Lock("a")
	defer unlockA()

	acquired := make(chan struct{})
	go func() {
		k.Lock("b")()
		close(acquired)
	}()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("lock on b waited for a")
	}
}

func TestJwtRoundTrip(t *testing.T) {
	token, err := JwtGenerate(42, "ana", "manager")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	claims, err := ParseClaims(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.ID != 42 || claims.Username != "ana" || claims.Role != "manager" {
		t.Fatalf("claims = %+v", claims)
	}
	if ttl := claims.TokenTTL(); ttl <= 0 || ttl > TokenLifespan() {
		t.Fatalf("ttl = %s", ttl)
	}
}

func TestParseClaims_Rejects(t *testing.T) {
	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, &JwtCustomClaim{
		ID: 1,
		StandardClaims: jwt.StandardClaims{
			ExpiresAt: time.Now().Add(-time.Hour).Unix(),
		},
	})
	expiredToken, _ := expired.SignedString(jwtSecret)

	foreign := jwt.NewWithClaims(jwt.SigningMethodHS256, &JwtCustomClaim{ID: 1})
	foreignToken, _ := foreign.SignedString([]byte("some-other-secret"))

	valid, _ := JwtGenerate(1, "ana", "user")
	parts := strings.Split(valid, ".")
	tampered := parts[0] + "." + parts[1] + "x." + parts[2]

	for name, token := range map[string]string{
		"expired":  expiredToken,
		"foreign":  foreignToken,
		"tampered": tampered,
		"garbage":  "not-a-token",
		"empty":    "",
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseClaims(token); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestPasswordHash(t *testing.T) {
	hashed, err := HashPassword("s3cret!")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if hashed == "s3cret!" {
		t.Fatal("password stored in clear")
	}
	if err := ComparePassword(hashed, "s3cret!"); err != nil {
		t.Fatalf("compare: %v", err)
	}
	if err := ComparePassword(hashed, "wrong"); err == nil {
		t.Fatal("wrong password accepted")
	}
}

func TestNormalizePhoneNumber(t *testing.T) {
	got, err := NormalizePhoneNumber("+1 650-253-0000", "US")
	if err != nil || got != "+16502530000" {
		t.Fatalf("got %q, %v", got, err)
	}
	if _, err := NormalizePhoneNumber("12", "US"); err == nil {
		t.Fatal("short number accepted")
	}
}
