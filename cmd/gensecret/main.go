package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
)

// Mints a signing secret for ACCESS_TOKEN_SECRET or REFRESH_TOKEN_SECRET
// Run twice: the two classes must never share a secret

const SecretKeyBytesLen = 32

func main() {
	b := make([]byte, SecretKeyBytesLen)

	_, err := rand.Read(b)
	if err != nil {
		fmt.Printf("error while generating secret key: %v", err)
		os.Exit(1)
	}

	fmt.Println(hex.EncodeToString(b))
}
