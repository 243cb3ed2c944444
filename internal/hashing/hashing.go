// Package hashing computes the integrity digests carried on every stored
// row. The digest is a SHA-256 over a canonical JSON encoding of the
// entity's fields: encoding/json marshals maps with sorted keys, which
// gives the stable ordering the digest needs.
//
// Callers must hash the durable, persisted state: insert first so generated
// identifiers and defaults are populated, re-read, then digest.
package hashing

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"
)

// Field names excluded from the chain=false digest so it reflects only
// business-meaningful content.
const (
	hashField      = "hash"
	chainHashField = "chain_hash"
)

// Digest serializes every exported field of entity and returns the SHA-256
// hex digest. With chain=false the entity's own hash and chain_hash fields
// are excluded; with chain=true they are included, folding the prior
// version's digests into the result and forming the chain.
func Digest(entity any, chain bool) (string, error) {
	fields, err := collect(entity)
	if err != nil {
		return "", err
	}
	if !chain {
		delete(fields, hashField)
		delete(fields, chainHashField)
	}

	buf, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("serialize for digest: %w", err)
	}
	sum := sha256.Sum256(buf)
	return hex.EncodeToString(sum[:]), nil
}

// Pair computes both digest forms in the required order: the chain digest
// first, while the entity's hash fields still hold the previous version's
// values, then the content digest.
func Pair(entity any) (hash string, chainHash string, err error) {
	chainHash, err = Digest(entity, true)
	if err != nil {
		return "", "", err
	}
	hash, err = Digest(entity, false)
	if err != nil {
		return "", "", err
	}
	return hash, chainHash, nil
}

func collect(entity any) (map[string]any, error) {
	v := reflect.ValueOf(entity)
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil, fmt.Errorf("cannot digest nil entity")
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil, fmt.Errorf("cannot digest %s, want struct", v.Kind())
	}

	fields := map[string]any{}
	collectStruct(v, fields)
	return fields, nil
}

func collectStruct(v reflect.Value, fields map[string]any) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		// Embedded bookkeeping structs are flattened
		if f.Anonymous && f.Type.Kind() == reflect.Struct && f.Type != reflect.TypeOf(time.Time{}) {
			collectStruct(v.Field(i), fields)
			continue
		}
		name := fieldName(f)
		if name == "-" {
			continue
		}
		fields[name] = normalize(v.Field(i).Interface())
	}
}

func fieldName(f reflect.StructField) string {
	tag := f.Tag.Get("json")
	if tag == "" {
		return f.Name
	}
	name, _, _ := strings.Cut(tag, ",")
	if name == "" {
		return f.Name
	}
	return name
}

// normalize pins timestamps to a canonical string so the digest is stable
// regardless of the in-memory time representation.
func normalize(value any) any {
	switch ts := value.(type) {
	case time.Time:
		return ts.UTC().Format(time.RFC3339Nano)
	case *time.Time:
		if ts == nil {
			return nil
		}
		return ts.UTC().Format(time.RFC3339Nano)
	default:
		return value
	}
}
