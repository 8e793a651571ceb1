package main

import (
	"github.com/Infantselva015/eci-payment-service/cmd"
)

func main() {
	cmd.Execute()
}
