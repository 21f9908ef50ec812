// tokenhash generates a control token and the bcrypt hash to configure as
// CONTROL_TOKEN_HASH.
package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"

	"golang.org/x/crypto/bcrypt"
)

func main() {
	token := make([]byte, 32)
	if _, err := rand.Read(token); err != nil {
		panic(err)
	}
	plain := hex.EncodeToString(token)

	if len(os.Args) > 1 {
		plain = os.Args[1]
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		panic(err)
	}

	fmt.Printf("Token:              %s\n", plain)
	fmt.Printf("CONTROL_TOKEN_HASH: %s\n", hash)
}
