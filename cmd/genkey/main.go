package main

import (
	"fmt"
	"os"

	"github.com/goccy/go-json"

	"github.com/AaravAtGit/DecentChat/internal/crypto"
)

func main() {
	pair, err := crypto.GenerateKeyPair()
	if err != nil {
		panic(err)
	}

	out, err := json.MarshalIndent(pair, "", "  ")
	if err != nil {
		panic(err)
	}

	fmt.Println(string(out))
	fmt.Fprintf(os.Stderr, "Soul: ~%s\n", pair.Pub)
}
