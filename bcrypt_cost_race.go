//go:build race

package auth

import "golang.org/x/crypto/bcrypt"

// DefaultPasswordCost drops to the bcrypt minimum under the race detector,
// which slows hashing by an order of magnitude.
const DefaultPasswordCost = bcrypt.MinCost

func passwordHashCost() int { return DefaultPasswordCost }
