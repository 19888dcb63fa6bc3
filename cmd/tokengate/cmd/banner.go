package cmd

import (
	"fmt"
)

const banner = `
  _______    _              _____       _
 |__   __|  | |            / ____|     | |
    | | ___ | | _____ _ __| |  __  __ _| |_ ___
    | |/ _ \| |/ / _ \ '_ \ | |_ |/ _` + "`" + ` | __/ _ \
    | | (_) |   <  __/ | | | |__| | (_| | ||  __/
    |_|\___/|_|\_\___|_| |_|\_____|\__,_|\__\___|
`

func printBanner() {
	fmt.Printf("\x1b[34m%s\x1b[0m", banner)
	fmt.Printf("\x1b[32m  Session Token Service - Version %s\x1b[0m\n\n", Version)
}
