package main

import (
	"github.com/samuelfneumann/goppo/examples"
)

func main() {
	examples.PPOPointMass()
}
