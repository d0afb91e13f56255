package chathub

import "math/rand/v2"

var (
	aliasAdjectives = []string{
		"Toxic", "Cracked", "Clutch", "Silent", "Phantom",
		"Stealth", "Raging", "Infinite", "Neon", "Hungry",
		"Cursed", "Hyper", "Wild", "Cyber", "Shadow",
	}
	aliasCreatures = []string{
		"Cobra", "Phoenix", "Rhino", "Mantis", "Viper",
		"Falcon", "Lynx", "Titan", "Drake", "Specter",
		"Mamba", "Reaper", "Golem", "Wraith", "Hydra",
	}
)

// GamerAlias returns a random "<Adjective> <Creature>" display name for guests.
func GamerAlias() string {
	return aliasAdjectives[rand.IntN(len(aliasAdjectives))] + " " + aliasCreatures[rand.IntN(len(aliasCreatures))]
}
