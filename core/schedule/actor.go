package schedule

type ActorKind int

const (
	ActorAnonymous ActorKind = iota
	ActorTrainer
	ActorCustomerService
	ActorAdmin
	ActorFinance
)

// role names as carried by access tokens
const (
	RoleTrainer         = "trainer"
	RoleCustomerService = "customer_service"
	RoleAdmin           = "admin"
	RoleFinance         = "finance"
)

// Actor is whoever performs an operation. Build it with one of the constructors.
type Actor struct {
	Kind      ActorKind
	ID        string // user id, empty for anonymous
	TrainerID string // set for trainers only
}

func Anonymous() Actor { return Actor{Kind: ActorAnonymous} }

func TrainerActor(id, trainerID string) Actor {
	return Actor{Kind: ActorTrainer, ID: id, TrainerID: trainerID}
}

func CustomerServiceActor(id string) Actor { return Actor{Kind: ActorCustomerService, ID: id} }

func AdminActor(id string) Actor { return Actor{Kind: ActorAdmin, ID: id} }

func FinanceActor(id string) Actor { return Actor{Kind: ActorFinance, ID: id} }

// ActorFromRole resolves an authenticated identity. Unknown roles resolve to Anonymous.
func ActorFromRole(role, id, trainerID string) Actor {
	switch role {
	case RoleTrainer:
		if trainerID == "" {
			return Anonymous()
		}
		return TrainerActor(id, trainerID)
	case RoleCustomerService:
		return CustomerServiceActor(id)
	case RoleAdmin:
		return AdminActor(id)
	case RoleFinance:
		return FinanceActor(id)
	default:
		return Anonymous()
	}
}

func (a Actor) Role() string {
	switch a.Kind {
	case ActorTrainer:
		return RoleTrainer
	case ActorCustomerService:
		return RoleCustomerService
	case ActorAdmin:
		return RoleAdmin
	case ActorFinance:
		return RoleFinance
	default:
		return "anonymous"
	}
}

func (a Actor) IsStaff() bool { return a.Kind == ActorCustomerService || a.Kind == ActorAdmin }

func (a Actor) teaches(c Course) bool {
	return a.Kind == ActorTrainer && a.TrainerID != "" && a.TrainerID == c.TrainerID
}

func (a Actor) CanPostpone(c Course) bool { return a.IsStaff() || a.teaches(c) }

// CanForceOverride reports whether the actor may postpone into a slot where the trainer is busy.
func (a Actor) CanForceOverride() bool { return a.IsStaff() }

func (a Actor) CanCancelPostponement(c Course) bool { return a.IsStaff() || a.teaches(c) }

func (a Actor) CanRecordAttendance(c Course) bool { return a.IsStaff() || a.teaches(c) }

func (a Actor) CanViewSchedule(c Course) bool {
	return a.IsStaff() || a.Kind == ActorFinance || a.teaches(c)
}

func (a Actor) CanGenerateSchedule() bool { return a.IsStaff() }
