package banner

import (
	"github.com/pterm/pterm"
	"github.com/pterm/pterm/putils"
)

func Print() {
	ptermLogo, _ := pterm.DefaultBigText.WithLetters(
		putils.LettersFromStringWithRGB("Claw", pterm.NewRGB(255, 107, 53)),
		putils.LettersFromStringWithRGB("Watch", pterm.NewRGB(0, 0, 0))).
		Srender()

	pterm.DefaultCenter.Print(ptermLogo)

	pterm.DefaultCenter.Print(
		pterm.DefaultHeader.
			WithFullWidth().
			WithBackgroundStyle(pterm.NewStyle(pterm.BgLightRed)).
			WithMargin(5).
			Sprint(pterm.White("🐾 ClawWatch - Agent Activity & Cost Monitoring")),
	)

	pterm.Info.Println(
		"Watches agent session logs, tracks spend and activity, and raises alerts." +
			"\nIdempotent ingestion, rule-based alerting, reliable delivery." +
			"\nVersion 0.0.1.",
	)
}
