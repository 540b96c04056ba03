package service

import (
	"encoding/json"
	"testing"
)

func TestComputeParamsHashCanonicalization(t *testing.T) {
	a, err := ComputeParamsHash("post_tweet", json.RawMessage(`{"text":"hi","reply_to":"1"}`))
	if err != nil {
		t.Fatalf("ComputeParamsHash() error = %v", err)
	}
	b, err := ComputeParamsHash("post_tweet", json.RawMessage(`{ "reply_to" : "1", "text" : "hi" }`))
	if err != nil {
		t.Fatalf("ComputeParamsHash() error = %v", err)
	}
	if a != b {
		t.Errorf("key order and whitespace should not change the hash: %s vs %s", a, b)
	}
}

func TestComputeParamsHashDistinguishes(t *testing.T) {
	base, _ := ComputeParamsHash("post_tweet", json.RawMessage(`{"text":"hi"}`))

	otherParams, _ := ComputeParamsHash("post_tweet", json.RawMessage(`{"text":"hi!"}`))
	if base == otherParams {
		t.Error("different params should hash differently")
	}

	otherTool, _ := ComputeParamsHash("reply_tweet", json.RawMessage(`{"text":"hi"}`))
	if base == otherTool {
		t.Error("different tools should hash differently")
	}
}

func TestComputeParamsHashEmptyParams(t *testing.T) {
	empty, err := ComputeParamsHash("post_tweet", nil)
	if err != nil {
		t.Fatalf("ComputeParamsHash(nil) error = %v", err)
	}
	obj, err := ComputeParamsHash("post_tweet", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("ComputeParamsHash({}) error = %v", err)
	}
	if empty != obj {
		t.Error("nil params should hash like the empty object")
	}
}

func TestComputeParamsHashInvalidJSON(t *testing.T) {
	if _, err := ComputeParamsHash("post_tweet", json.RawMessage(`{"broken":`)); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}
