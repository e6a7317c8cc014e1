package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"time"

	"github.com/mmdatafocus/warehouse_backend/config"
)

func GetCacheLifespan() time.Duration {
	lifespan, err := strconv.Atoi(os.Getenv("CACHE_LIFESPAN"))
	if err != nil {
		lifespan = 1
	}
	return time.Duration(lifespan) * time.Hour
}

func GetTypeName[T any]() string {
	var v T
	return reflect.TypeOf(v).Name()
}

func redisItemKey[T any](id int) string {
	return GetTypeName[T]() + ":" + fmt.Sprint(id)
}

// store instance under Type:id
func StoreRedis[T any](obj *T, id int) error {
	return config.SetRedisObject(redisItemKey[T](id), obj, GetCacheLifespan())
}

// get from redis
// returns nil if does not exist
func RetrieveRedis[T any](id int) (*T, error) {
	var result T
	exists, err := config.GetRedisObject(redisItemKey[T](id), &result)
	if err != nil || !exists {
		return nil, err
	}
	return &result, nil
}

func RemoveRedisItem[T any](id int) error {
	return config.RemoveRedisKey(redisItemKey[T](id))
}

func revokedTokenKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return "RevokedToken:" + hex.EncodeToString(sum[:])
}

// RevokeToken denies the token until it would have expired anyway.
func RevokeToken(token string, ttl time.Duration) error {
	return config.SetRedisValue(revokedTokenKey(token), "1", ttl)
}

func IsTokenRevoked(token string) (bool, error) {
	_, exists, err := config.GetRedisValue(revokedTokenKey(token))
	return exists, err
}
