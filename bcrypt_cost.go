//go:build !race

package auth

// DefaultPasswordCost is the bcrypt cost used unless WithPasswordCost says otherwise
const DefaultPasswordCost = 12

func passwordHashCost() int { return DefaultPasswordCost }
