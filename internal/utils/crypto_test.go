package utils

import (
	"strings"
	"testing"
)

func TestEncryptDecryptSecret(t *testing.T) {
	enc, err := EncryptSecret("sk-test-123456", "passphrase")
	if err != nil {
		t.Fatalf("加密失败: %v", err)
	}
	if !IsEncrypted(enc) || strings.Contains(enc, "sk-test") {
		t.Fatalf("加密结果不应包含明文: %s", enc)
	}

	dec, err := DecryptSecret(enc, "passphrase")
	if err != nil {
		t.Fatalf("解密失败: %v", err)
	}
	if dec != "sk-test-123456" {
		t.Fatalf("解密结果不一致: %s", dec)
	}

	if _, err := DecryptSecret(enc, "wrong"); err == nil {
		t.Fatal("错误的密钥应解密失败")
	}
}

func TestSecretPassthrough(t *testing.T) {
	v, err := EncryptSecret("plain", "")
	if err != nil || v != "plain" {
		t.Fatalf("无密钥时应原样返回, got %q %v", v, err)
	}
	v, err = DecryptSecret("plain", "any")
	if err != nil || v != "plain" {
		t.Fatalf("未加密的值应原样返回, got %q %v", v, err)
	}
}

func TestMaskSecret(t *testing.T) {
	if got := MaskSecret("sk-abcdef1234"); got != "********1234" {
		t.Fatalf("掩码结果错误: %s", got)
	}
	if got := MaskSecret("abc"); got != "****" {
		t.Fatalf("短密钥掩码错误: %s", got)
	}
	if MaskSecret("") != "" {
		t.Fatal("空值应返回空")
	}
}
