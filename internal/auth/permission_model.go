package auth

// 关系名称
const (
	RelationOwner       = "owner"
	RelationCreator     = "creator"
	RelationParticipant = "participant"
	RelationApprover    = "approver"
)

// 对象类型
const (
	ObjectTemplate = "template"
	ObjectDocument = "document"
	ObjectApproval = "approval"
)

// GetPermissionModel 获取 OpenFGA 权限模型定义. 升级后的替补审批人通过 approver 元组获得权限.
func GetPermissionModel() string {
	return `model
  schema 1.1

type user

type template
  relations
    define owner: [user]
    define editor: [user] or owner
    define viewer: [user] or editor

type document
  relations
    define creator: [user]
    define participant: [user]
    define viewer: [user] or creator or participant

type approval
  relations
    define approver: [user]
    define viewer: [user] or approver`
}
