// Command hashpw produces the argon2id hash for the operator account,
// ready to paste into the auth.operator_hash field of the server
// configuration. The password is read from stdin so it never lands in
// shell history.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/benchlab/benchcore/internal/auth"
)

func main() {
	fmt.Fprint(os.Stderr, "Password: ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read password: %v\n", err)
		os.Exit(1)
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		fmt.Fprintln(os.Stderr, "empty password")
		os.Exit(1)
	}

	hash, err := auth.NewPasswordHasher().HashPassword(password)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to hash password: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(hash)
}
