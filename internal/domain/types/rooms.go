package types

import "fmt"

// Room names. Three topologies: the admin-wide room, one room per fleet
// owner, and one self room per user for direct messages.
const RoomAllFleets = "fleet:all"

func FleetRoom(ownerID fmt.Stringer) string {
	return fmt.Sprintf("fleet:%s", ownerID)
}

func UserRoom(userID fmt.Stringer) string {
	return fmt.Sprintf("user:%s", userID)
}
